//go:build rp2040

// Command am-main is the application microcontroller image: it owns
// the NAND-backed NVM store and two-slot image registry, drives the
// ASP link as initiator, relays sensor data off the SSM, and answers
// a line-oriented debug console (§0 "cmd/am-main").
package main

import (
	"bufio"
	"context"
	"os"
	"time"

	"machine"

	"github.com/google/shlex"

	"waterpump-fw/asp"
	"waterpump-fw/bus"
	"waterpump-fw/control"
	"waterpump-fw/imagereg"
	"waterpump-fw/nvm"
	"waterpump-fw/services/bridge"
	"waterpump-fw/services/config"
	"waterpump-fw/services/watchdog"
	"waterpump-fw/types"
	"waterpump-fw/x/fmtx"
)

const (
	secDeviceInfo nvm.SectionID = iota
	secImageReg
)

const (
	deviceInfoEntryLen = 24
	imageRegEntryLen   = 12
)

// rawNAND is the AM's NAND flash chip hook. No concrete NAND driver
// exists anywhere in the pack for this part; board bring-up sets this
// before main runs (mirrors the bridge.UARTDial injection seam).
// NANDBackend does not check for a nil device: left nil, the first NVM
// access (store.Init) panics on the nil interface.
var rawNAND nvm.RawNAND

const pinAttnIn = machine.GPIO4

func main() {
	now := time.Now

	backend := nvm.NewNANDBackend(rawNAND)
	store := nvm.NewStore(backend, []struct {
		ID   nvm.SectionID
		Desc nvm.SectionDescriptor
	}{
		{ID: secDeviceInfo, Desc: nvm.SectionDescriptor{
			TypeTag: 1, StartAddr: 0, EndAddr: deviceInfoEntryLen,
			IsArray: false, EntryLen: deviceInfoEntryLen, DefaultCount: 1,
		}},
		{ID: secImageReg, Desc: nvm.SectionDescriptor{
			TypeTag: 2, StartAddr: deviceInfoEntryLen, EndAddr: deviceInfoEntryLen + imageRegEntryLen,
			IsArray: false, EntryLen: imageRegEntryLen, DefaultCount: 1,
		}},
	})
	if err := store.Init(); err != nil {
		println("am: nvm init failed:", err.Error())
	}

	registry := imagereg.New(store, secImageReg)
	if _, err := registry.Load(); err != nil {
		println("am: image registry load failed, defaulting:", err.Error())
	}

	pinAttnIn.Configure(machine.PinConfig{Mode: machine.PinInput})

	hooks := control.Hooks{
		PowerCycleSystem: func() { machine.Watchdog.Update() }, // AM has no independent power-cycle line; reset via watchdog
	}
	loop := control.NewLoop(now, hooks, control.Config{WakeIntervalDays: control.WakeRateDeactivatedDays}, types.ResetPowerOn, true, 0)

	b := bus.NewBus(32)
	conn := b.NewConnection("am-main")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgSvc := config.NewConfigService()
	cfgSvc.Start(ctx, conn)

	wd := &watchdog.Service{Kick: func() { machine.Watchdog.Update() }}
	_ = wd.Start(ctx, conn)

	_ = (&control.Service{Loop: loop}).Start(ctx, conn)

	go bridge.Start(ctx, conn)
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"},
		`{"side":"am","transport":{"type":"uart","uart":{"id":"uart1","baud":115200}}}`, false))

	go relaySSMFrames(ctx, conn, loop)

	runConsole(conn, registry)
}

// relaySSMFrames watches the AM's view of the ASP link for frames the
// SSM sends unsolicited (Status, SensorData, AttnSrc) and folds the
// parts relevant to control state into Loop, mirroring the teacher's
// heartbeat-style "subscribe and react" service shape.
func relaySSMFrames(ctx context.Context, conn *bus.Connection, loop *control.Loop) {
	rxSub := conn.Subscribe(bus.Topic{"asp", "rx"})
	defer conn.Unsubscribe(rxSub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-rxSub.Channel():
			f, ok := msg.Payload.(*asp.Frame)
			if !ok {
				continue
			}
			switch f.ID {
			case asp.IDStatus:
				st, err := asp.UnmarshalStatus(f.Payload)
				if err != nil {
					println("am: bad status frame:", err.Error())
					continue
				}
				println(fmtx.Sprintf("am: ssm status errbits=%d voltage_mv=%d", st.ErrorBits, st.VoltageMv))
			case asp.IDAttnSrc:
				as, err := asp.UnmarshalAttnSrc(f.Payload)
				if err != nil {
					continue
				}
				loop.HandleAttnAck(as.Bits)
				ackFrame := &asp.Frame{ID: asp.IDAttnAck, Payload: asp.MarshalAttnAck(asp.AttnAckPayload{Bits: as.Bits})}
				conn.Publish(conn.NewMessage(bus.Topic{"asp", "tx"}, ackFrame, false))
			case asp.IDSensorData:
				// Sensor-data relay off the SSM's ring lands here; the
				// cloud-facing transport is out of scope (§1 Non-goals).
			}
		}
	}
}

// runConsole is the debug console's read loop: tokenize each line with
// shlex (handles quoted filenames the way a shell would) and dispatch
// to a handful of named commands. It returns once the scanner stops
// (end of input or a read error).
func runConsole(conn *bus.Connection, registry *imagereg.Registry) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		args, err := shlex.Split(scanner.Text())
		if err != nil || len(args) == 0 {
			continue
		}
		dispatchConsoleCommand(conn, registry, args)
	}
}

// sendCommand is the AM-as-initiator path (§4.1/§6): encode the command
// as an ASP Command(0x11) frame and hand it to the bridge for
// transmission to the SSM, rather than (incorrectly) applying it to the
// AM's own local Loop, which never owns activation state.
func sendCommand(conn *bus.Connection, cmd asp.Command) {
	frame := &asp.Frame{ID: asp.IDCommand, Payload: asp.MarshalCommand(asp.CommandPayload{Cmd: cmd})}
	conn.Publish(conn.NewMessage(bus.Topic{"asp", "tx"}, frame, false))
}

func dispatchConsoleCommand(conn *bus.Connection, registry *imagereg.Registry, args []string) {
	switch args[0] {
	case "activate":
		sendCommand(conn, asp.Activate)
	case "deactivate":
		sendCommand(conn, asp.Deactivate)
	case "reset-alarms":
		sendCommand(conn, asp.ResetAlarms)
	case "sw-reset":
		sendCommand(conn, asp.SwReset)
	case "hw-reset":
		sendCommand(conn, asp.HwReset)
	case "slots":
		reg, err := registry.Load()
		if err != nil {
			println("am: slot dump failed:", err.Error())
			return
		}
		println(fmtx.Sprintf("am: loaded=%d primary=%d", int(reg.LoadedSlot), int(reg.PrimarySlot)))
	default:
		println("am: unknown console command:", args[0])
	}
}
