// bridge/bridge_test.go
package bridge

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"waterpump-fw/asp"
	"waterpump-fw/bus"
)

func TestBridge_EstablishesUARTLinkAndReportsState(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	// Subscribe to bridge/state (retained) and verify initial status.
	stateSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(stateSub)

	first := nextStatePayload(t, stateSub, 500*time.Millisecond)
	assertLevelStatus(t, first, "idle", "awaiting_config")

	// Inject a UART dialler that returns a net.Pipe; keep the remote end to simulate link loss.
	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	var remote io.ReadWriteCloser
	UARTDial = func(ctx context.Context, _ UARTConfig) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		remote = rc
		go remotePeer(rc)
		return lc, nil
	}

	// Publish a valid UART config for the AM side (decodes SSM->AM frames).
	cfg := `{"side":"am","transport":{"type":"uart","uart":{"id":"uart0","baud":115200,"rx_pin":1,"tx_pin":0}}}`
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, cfg, false))

	up := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, up, "up", "link_established")

	// Close the remote to force link loss; expect degraded state.
	if remote != nil {
		_ = remote.Close()
	}

	degraded := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, degraded, "degraded", "link_lost_retrying")
}

func TestBridge_DecodesIncomingFrameOntoRxTopic(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_test_rx")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	stateSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(stateSub)
	_ = nextStatePayload(t, stateSub, 500*time.Millisecond)

	rxSub := conn.Subscribe(topicASPRx)
	defer conn.Unsubscribe(rxSub)

	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	var remote io.ReadWriteCloser
	UARTDial = func(ctx context.Context, _ UARTConfig) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		remote = rc
		return lc, nil
	}

	cfg := `{"side":"am","transport":{"type":"uart","uart":{"id":"uart0","baud":115200}}}`
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, cfg, false))
	_ = nextStatePayload(t, stateSub, time.Second)

	go func() {
		_, _ = remote.Write(asp.Encode(asp.IDAck, nil))
	}()

	select {
	case msg := <-rxSub.Channel():
		f, ok := msg.Payload.(*asp.Frame)
		if !ok {
			t.Fatalf("rx payload type: got %T, want *asp.Frame", msg.Payload)
		}
		if f.ID != asp.IDAck {
			t.Fatalf("got id %v, want IDAck", f.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for decoded frame on asp/rx")
	}
}

func TestBridge_ForwardsTxTopicFrameOverLink(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("bridge_test_tx")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	stateSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(stateSub)
	_ = nextStatePayload(t, stateSub, 500*time.Millisecond)

	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	var remote io.ReadWriteCloser
	UARTDial = func(ctx context.Context, _ UARTConfig) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		remote = rc
		return lc, nil
	}

	cfg := `{"side":"ssm","transport":{"type":"uart","uart":{"id":"uart0","baud":115200}}}`
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, cfg, false))
	_ = nextStatePayload(t, stateSub, time.Second)

	conn.Publish(conn.NewMessage(topicASPTx, &asp.Frame{ID: asp.IDStatus, Payload: nil}, false))

	want := asp.Encode(asp.IDStatus, nil)
	got := make([]byte, len(want))
	if err := readFull(remote, got); err != nil {
		t.Fatalf("reading forwarded frame: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("forwarded bytes mismatch: got %v, want %v", got, want)
		}
	}
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

func TestBridge_UnknownTransportYieldsErrorState(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("bridge_test_bad")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	stateSub := conn.Subscribe(bus.Topic{"bridge", "state"})
	defer conn.Unsubscribe(stateSub)

	_ = nextStatePayload(t, stateSub, 500*time.Millisecond) // initial awaiting_config

	// Publish a config with an unknown transport type.
	cfg := `{"transport":{"type":"bogus"}}`
	conn.Publish(conn.NewMessage(bus.Topic{"config", "bridge"}, cfg, false))

	errState := nextStatePayload(t, stateSub, time.Second)
	assertLevelStatus(t, errState, "error", "transport_init_failed")
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// remotePeer drains bytes written by the bridge under test until the
// link closes, standing in for a real SSM/AM peer in the link-loss test.
func remotePeer(c io.ReadWriteCloser) {
	defer c.Close()
	buf := make([]byte, 64)
	for {
		if _, err := c.Read(buf); err != nil {
			return
		}
	}
}

func nextStatePayload(t *testing.T, sub *bus.Subscription, d time.Duration) map[string]any {
	t.Helper()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case m := <-sub.Channel():
		p, ok := m.Payload.(map[string]any)
		if !ok {
			t.Fatalf("state payload type: got %T, want map[string]any", m.Payload)
		}
		return p
	case <-timer.C:
		t.Fatalf("timeout waiting for bridge/state")
		return nil
	}
}

func assertLevelStatus(t *testing.T, payload map[string]any, wantLevel, wantStatus string) {
	t.Helper()
	gotLevel, _ := payload["level"].(string)
	gotStatus, _ := payload["status"].(string)
	if gotLevel != wantLevel || gotStatus != wantStatus {
		t.Fatalf("unexpected state: level=%q status=%q, want level=%q status=%q (payload=%v)",
			gotLevel, gotStatus, wantLevel, wantStatus, payload)
	}
}
