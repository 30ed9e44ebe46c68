//go:build rp2040

// Command ssm-main is the sensor/state microcontroller image: it runs
// the capacitive water-volume algorithm, owns the EEPROM-backed NVM
// store, and answers the AM over the ASP link as the SSM's wake/attention
// responder (§0 "cmd/ssm-main").
package main

import (
	"context"
	"time"

	"machine"

	"waterpump-fw/asp"
	"waterpump-fw/bus"
	"waterpump-fw/control"
	"waterpump-fw/diag"
	"waterpump-fw/errcode"
	"waterpump-fw/nvm"
	"waterpump-fw/ring"
	"waterpump-fw/rollup"
	"waterpump-fw/services/bridge"
	"waterpump-fw/services/config"
	"waterpump-fw/services/watchdog"
	"waterpump-fw/types"
	"waterpump-fw/drivers/ltc4015"
	"waterpump-fw/waterwtr"
	"waterpump-fw/x/fmtx"
)

// productID and fwVersion stamp every sensor-data entry this image
// persists (§3 "Sensor data entry" header). No board-identity source
// exists in the pack; these are placeholders for board bring-up to
// set from a real part/build identifier.
const productID uint16 = 1

var fwVersion = types.Firmware{Major: 0, Minor: 1, Build: 0}

// NVM section layout (§3 "Section descriptor"). Addresses are
// byte offsets into the EEPROM part; sized generously rather than
// bit-packed tightly, since the EEPROM part on this board is larger
// than either section needs.
const (
	secDeviceInfo nvm.SectionID = iota
	secSensorData
)

const (
	deviceInfoEntryLen  = 24 // reset state + counters + timestamp, padded
	sensorDataEntryLen  = 201 // MarshalSensorData output, padded, + checksum
	sensorDataCapacity  = 64
)

// GPIO pins wiring the AM attention line and the shared power-cycle
// reset line; adjust per board revision.
const (
	pinAttn       = machine.GPIO2
	pinPowerCycle = machine.GPIO3
)

func main() {
	now := time.Now

	i2c := machine.I2C0
	_ = i2c.Configure(machine.I2CConfig{Frequency: machine.TWI_FREQ_400KHZ})

	eeprom := nvm.NewI2CEEPROM(i2c, 0x50)
	backend := nvm.NewEEPROMBackend(eeprom)
	store := nvm.NewStore(backend, []struct {
		ID   nvm.SectionID
		Desc nvm.SectionDescriptor
	}{
		{ID: secDeviceInfo, Desc: nvm.SectionDescriptor{
			TypeTag: 1, StartAddr: 0, EndAddr: deviceInfoEntryLen,
			IsArray: false, EntryLen: deviceInfoEntryLen, DefaultCount: 1,
		}},
		{ID: secSensorData, Desc: nvm.SectionDescriptor{
			TypeTag: 2, StartAddr: deviceInfoEntryLen,
			EndAddr:  deviceInfoEntryLen + uint32(sensorDataEntryLen)*sensorDataCapacity,
			IsArray:  true, EntryLen: sensorDataEntryLen, DefaultCount: sensorDataCapacity,
		}},
	})
	if err := store.Init(); err != nil {
		println("ssm: nvm init failed:", err.Error())
	}

	sensorRing := ring.New(store, secSensorData, sensorDataCapacity, false)

	pinAttn.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinPowerCycle.Configure(machine.PinConfig{Mode: machine.PinOutput})

	battCfg := ltc4015.DefaultConfig()
	battCfg.RSNSB_uOhm = 10000 // 10 mOhm battery sense resistor
	battCfg.RSNSI_uOhm = 10000 // 10 mOhm input sense resistor
	batt := ltc4015.New(i2c, battCfg)

	hooks := control.Hooks{
		AssertWakeAM: func() { pinAttn.High() },
		ClearWakeAM:  func() { pinAttn.Low() },
		MeasureBatteryVoltage: func() {
			mv, err := batt.Battery_mVPack()
			if err != nil {
				println(fmtx.Sprintf("ssm: battery read failed: %s", err.Error()))
				return
			}
			println(fmtx.Sprintf("ssm: battery %d mV", mv))
		},
		PowerCycleSystem: func() {
			pinPowerCycle.High()
			time.Sleep(100 * time.Millisecond)
			pinPowerCycle.Low()
		},
	}

	loop := control.NewLoop(now, hooks, control.Config{WakeIntervalDays: control.WakeRateDeactivatedDays}, types.ResetPowerOn, true, 0)
	roller := rollup.New()
	pipeline := waterwtr.NewPipeline()

	monitor := diag.NewMonitor(now, func() {
		println("ssm: diag reset algo")
		pipeline.WaterVolumeSum = 0
	}, func(bits errcode.Bits) {
		loop.IndicateError(bits)
	})

	b := bus.NewBus(32)
	conn := b.NewConnection("ssm-main")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgSvc := config.NewConfigService()
	cfgSvc.Start(ctx, conn)

	wd := &watchdog.Service{Kick: func() { machine.Watchdog.Update() }}
	_ = wd.Start(ctx, conn)

	_ = (&control.Service{Loop: loop}).Start(ctx, conn)

	go bridge.Start(ctx, conn)
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"},
		`{"side":"ssm","transport":{"type":"uart","uart":{"id":"uart0","baud":115200}}}`, false))

	go dispatchASPRx(ctx, conn, loop, sensorRing)

	// readPads is the capacitive-pad ADC read; no concrete ADC driver
	// exists in the pack for this sensor, so it's an injected hook
	// (mirrors the teacher's UARTDial seam) left for board bring-up to
	// fill in. Left nil here drives an all-zero sample stream.
	var readPads func() waterwtr.Sample

	tick := time.NewTicker(diag.TickPeriod)
	defer tick.Stop()
	hourTicks := 0
	ticksPerHour := int(time.Hour / diag.TickPeriod)
	var seq uint32

	for range tick.C {
		monitor.Tick()
		var sample waterwtr.Sample
		if readPads != nil {
			sample = readPads()
		}
		pipeline.Ingest(sample)
		loop.Tick(int32(pipeline.WaterVolumeSum))

		hourTicks++
		if hourTicks >= ticksPerHour {
			hourTicks = 0
			hour := now().Hour()
			roller.UpdateHour(int32(pipeline.WaterVolumeSum), 0, 0, 0, 0)
			_ = hour
			if hour == 23 {
				cfg := rollup.RedFlagConfig{}
				rec, ready := roller.Advance(int(now().Weekday()), cfg, 0, loop.State.String(),
					uint32(loop.Errors), loop.UnexpectedResets, loop.ActivationDate, now().Unix())
				if ready {
					loop.HourBoundary(1, rec.Breakdown)
					monitor.ResetDaily()

					seq = types.NextSequence(seq)
					entry := types.SensorDataEntry{
						Header: types.SensorDataHeader{
							ProductID: productID,
							Timestamp: now().Unix(),
							Sequence:  seq,
							FwVersion: fwVersion,
						},
						Kind: types.SensorDataNormal,
						Data: rec,
					}
					if err := sensorRing.Push(padEntry(asp.MarshalSensorData(asp.SensorDataPayload{Entry: entry}))); err != nil {
						println("ssm: sensor ring push failed:", err.Error())
					}
				}
			}
		}
	}
}

// padEntry fits a MarshalSensorData encoding (variable length, driven by
// LogString) into the fixed sensorDataEntryLen-1 bytes
// nvm.Store.UpdateCurrentEntry requires: excess is truncated, a short
// entry is zero-padded. LogString is expected to stay short enough that
// this is a no-op in practice.
func padEntry(b []byte) []byte {
	out := make([]byte, sensorDataEntryLen-1)
	copy(out, b)
	return out
}

// dispatchASPRx is the SSM-side half of the ASP link: it turns AM-
// initiated frames into the control-topic messages control.Service
// subscribes to, mirroring am-main's relaySSMFrames. Without this, the
// Command/Config/SetRtc/AttnAck/GetSensorData frames bridge.go decodes
// off the wire never reach the control loop.
func dispatchASPRx(ctx context.Context, conn *bus.Connection, loop *control.Loop, sensorRing *ring.Ring) {
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
			case asp.IDCommand:
				cp, err := asp.UnmarshalCommand(f.Payload)
				if err != nil {
					println("ssm: bad command frame:", err.Error())
					continue
				}
				conn.Publish(conn.NewMessage(bus.T("control", "command"), cp.Cmd, false))
			case asp.IDConfig:
				cp, err := asp.UnmarshalConfig(f.Payload)
				if err != nil {
					println("ssm: bad config frame:", err.Error())
					continue
				}
				conn.Publish(conn.NewMessage(bus.T("control", "config"), control.Config{
					WakeIntervalDays: cp.WakeIntervalDays,
					StrokeAlgOn:      cp.StrokeAlgIsOn,
					RedFlagOnPct:     cp.RedFlagOnThreshold,
					RedFlagOffPct:    cp.RedFlagOffThreshold,
				}, false))
			case asp.IDAttnAck:
				ap, err := asp.UnmarshalAttnAck(f.Payload)
				if err != nil {
					println("ssm: bad attn_ack frame:", err.Error())
					continue
				}
				conn.Publish(conn.NewMessage(bus.T("control", "attn_ack"), ap.Bits, false))
			case asp.IDSetRtc:
				rp, err := asp.UnmarshalSetRtc(f.Payload)
				if err != nil {
					println("ssm: bad set_rtc frame:", err.Error())
					continue
				}
				_ = rp
				loop.ValidTimestamp = true
			case asp.IDGetSensorData:
				if _, err := asp.UnmarshalGetSensorData(f.Payload); err != nil {
					println("ssm: bad get_sensor_data frame:", err.Error())
					continue
				}
				// EntryIndex addressing isn't supported by ring.Ring
				// (no indexed read); answer with the newest entry.
				latest, err := sensorRing.ReadLatest()
				if err != nil {
					continue
				}
				conn.Publish(conn.NewMessage(bus.Topic{"asp", "tx"},
					&asp.Frame{ID: asp.IDSensorData, Payload: latest}, false))
			}
		}
	}
}
