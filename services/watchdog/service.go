// Package watchdog kicks the hardware watchdog on a steady cadence so
// a wedged main loop triggers a reset rather than hanging forever,
// adapted from the teacher's heartbeat service into C6's watchdog-kick
// mechanism.
package watchdog

import (
	"context"
	"time"

	"waterpump-fw/bus"
)

var topicConfigWatchdog = bus.Topic{"config", "watchdog"}

// Service pets Kick every interval. Kick is nil-safe: a nil Kick makes
// the service a bare ticker, useful on hosts with no watchdog timer.
type Service struct {
	Kick func()
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigWatchdog)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("Info: watchdog service stopping")
			return
		case <-tick.C:
			if s.Kick != nil {
				s.Kick()
			}
		case msg := <-cfgSub.Channel():
			if m, ok := msg.Payload.(map[string]any); ok {
				if iv, ok := m["interval"]; ok {
					if interval, ok := iv.(float64); ok {
						tick.Reset(time.Duration(interval) * time.Second)
						println("Info:", "Watchdog kick interval set to", interval, "seconds")
					}
				}
			}
		}
	}
}

// Start launches the watchdog service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
