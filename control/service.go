package control

import (
	"context"
	"time"

	"waterpump-fw/asp"
	"waterpump-fw/bus"
	"waterpump-fw/errcode"
)

var (
	topicAttnAck  = bus.T("control", "attn_ack")
	topicCommand  = bus.T("control", "command")
	topicConfig   = bus.T("control", "config")
	topicTotalLtr = bus.T("algo", "total_liters")
	topicState    = bus.Topic{"control", "state"}
)

// Service drives a Loop from the bus: commands and attention acks
// arrive as messages, state changes are republished retained, matching
// the teacher's heartbeat/bridge service shape.
type Service struct {
	Loop *Loop
}

func NewService(loop *Loop) *Service {
	return &Service{Loop: loop}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	ackSub := conn.Subscribe(topicAttnAck)
	defer conn.Unsubscribe(ackSub)
	cmdSub := conn.Subscribe(topicCommand)
	defer conn.Unsubscribe(cmdSub)
	cfgSub := conn.Subscribe(topicConfig)
	defer conn.Unsubscribe(cfgSub)
	literSub := conn.Subscribe(topicTotalLtr)
	defer conn.Unsubscribe(literSub)

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	var totalLiters int32

	publishState := func() {
		conn.Publish(conn.NewMessage(topicState, s.Loop.State.String(), true))
	}
	publishState()

	for {
		select {
		case <-ctx.Done():
			println("Info: control service stopping")
			return
		case <-tick.C:
			prev := s.Loop.State
			s.Loop.Tick(totalLiters)
			if s.Loop.State != prev {
				println("ctrl:", prev.String(), "->", s.Loop.State.String())
				publishState()
			}
		case msg := <-literSub.Channel():
			if v, ok := msg.Payload.(int32); ok {
				totalLiters = v
			}
		case msg := <-ackSub.Channel():
			if bits, ok := msg.Payload.(asp.AttnBit); ok {
				s.Loop.HandleAttnAck(bits)
			}
		case msg := <-cmdSub.Channel():
			if cmd, ok := msg.Payload.(asp.Command); ok {
				s.handleCommand(cmd)
				publishState()
			}
		case msg := <-cfgSub.Channel():
			if cfg, ok := msg.Payload.(Config); ok {
				s.Loop.ApplyConfig(cfg)
			}
		}
	}
}

func (s *Service) handleCommand(cmd asp.Command) {
	now := time.Now().Unix()
	switch cmd {
	case asp.Activate:
		s.Loop.HandleActivateCmd(now)
	case asp.Deactivate:
		s.Loop.HandleDeactivateCmd(now)
	case asp.ResetAlarms:
		s.Loop.IndicateErrorResolved(errcode.Bits(^uint32(0)))
	case asp.SwReset:
		s.Loop.HandleJumpToBootloaderCmd()
	case asp.HwReset:
		s.Loop.HandlePowerCycleCmd()
	}
}

// Start launches the control service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
