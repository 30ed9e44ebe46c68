// bridge/bridge.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"waterpump-fw/asp"
	"waterpump-fw/bus"
)

// topicASPRx carries each frame decoded off the wire as a *asp.Frame;
// topicASPTx carries frames this service should encode and write out
// (§4.1's framed link, replacing the teacher's placeholder ping/pong
// scaffolding).
var (
	topicASPRx = bus.Topic{"asp", "rx"}
	topicASPTx = bus.Topic{"asp", "tx"}
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start starts the bridge service. It blocks until ctx is cancelled.
// It listens for JSON config on topic {"config","bridge"} and (re)configures the link.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:       conn,
		stateTopic: bus.Topic{"bridge", "state"},
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on "config/bridge".
type Config struct {
	Transport TransportConfig `json:"transport"`
	// Side names which end of the ASP link this process is: "am" or
	// "ssm". It picks the Decoder's direction (decoding the frames
	// the *other* side sends) and is required.
	Side string `json:"side"`
}

func (cfg Config) decodeDirection() (asp.Direction, error) {
	switch cfg.Side {
	case "am":
		return asp.SSMToAM, nil
	case "ssm":
		return asp.AMToSSM, nil
	default:
		return 0, fmt.Errorf("bridge: config.side must be %q or %q, got %q", "am", "ssm", cfg.Side)
	}
}

type TransportConfig struct {
	// "uart" (provided here) or other names registered via RegisterTransport.
	Type string      `json:"type"`
	UART *UARTConfig `json:"uart,omitempty"`
}

// UARTConfig carries enough information for an injected TinyGo dialler to open the UART.
// The actual pin mapping and UART instance selection will be handled in UARTDial.
type UARTConfig struct {
	ID             string `json:"id"` // "uart0" or "uart1"
	Baud           int    `json:"baud"`
	RxPin          int    `json:"rx_pin"` // platform-specific numeric IDs (e.g. machine.GPIOxx)
	TxPin          int    `json:"tx_pin"`
	ReadTimeoutMS  int    `json:"read_timeout_ms,omitempty"` // per read; 0 means blocking
	WriteTimeoutMS int    `json:"write_timeout_ms,omitempty"`
	// Optional hardware flow control flags etc. may be added later.
}

// RemapRule example (placeholder for later phases).
type RemapRule struct {
	Match        string `json:"match"`         // e.g. "system/#"
	RemotePrefix string `json:"remote_prefix"` // e.g. "pico/system"
	Direction    string `json:"direction"`     // "up", "down", or "both"
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
	curCfg atomic.Value // stores Config
}

// run waits for config and supervises a single link instance (more in later phases).
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "bridge"})
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	// Cancel any existing run.
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	s.curCfg.Store(cfg)
	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision and I/O
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}
	dir, err := cfg.decodeDirection()
	if err != nil {
		s.publishState("error", "bad_side_config", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		if err := s.handleLink(ctx, rwc, dir); err != nil {
			_ = rwc.Close()
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		// Clean close: restart only on new config.
		return
	}
}

// handleLink owns the active link lifetime: a reader goroutine feeds
// received bytes through an asp.Decoder and publishes each decoded
// frame to topicASPRx, while the caller's goroutine forwards frames
// published to topicASPTx out over the wire as asp.Encode bytes
// (§4.1's framed link replacing the teacher's ping/pong placeholder).
func (s *Service) handleLink(ctx context.Context, rwc io.ReadWriteCloser, dir asp.Direction) error {
	linkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	txSub := s.conn.Subscribe(topicASPTx)
	defer s.conn.Unsubscribe(txSub)

	errCh := make(chan error, 1)
	go s.readLink(linkCtx, rwc, dir, errCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case msg, ok := <-txSub.Channel():
			if !ok {
				return nil
			}
			f, ok := msg.Payload.(*asp.Frame)
			if !ok {
				continue
			}
			if _, err := rwc.Write(asp.Encode(f.ID, f.Payload)); err != nil {
				return err
			}
		}
	}
}

// readLink is the ISR-producer / main-loop-consumer boundary §5 calls
// for: received bytes go through asp.Driver's shmring queue rather than
// straight into the Decoder, and every framing/checksum failure gets a
// Nack transmitted back (asp/codec.go's Decode doc: "the caller is
// expected to transmit a Nack").
func (s *Service) readLink(ctx context.Context, rwc io.ReadWriteCloser, dir asp.Direction, errCh chan<- error) {
	drv := asp.NewDriver(dir, 256)
	buf := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			errCh <- nil
			return
		}
		n, err := rwc.Read(buf)
		for i := 0; i < n; i++ {
			drv.PushByte(buf[i])
		}
		for {
			f, decErr := drv.Poll()
			if decErr != nil {
				// Framing failure: the decoder has already resynced
				// to LookForStart; tell the sender to retransmit.
				nack := &asp.Frame{ID: asp.IDNack, Payload: asp.MarshalNack(asp.NackPayload{})}
				s.conn.Publish(s.conn.NewMessage(topicASPTx, nack, false))
				continue
			}
			if f == nil {
				break
			}
			s.conn.Publish(s.conn.NewMessage(topicASPRx, f, false))
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu     sync.RWMutex
	registry  = map[string]transportFactory{}
	errNoDial = errors.New("UARTDial not implemented")
)

// RegisterTransport allows external packages to add transports (eg. "ws", "tcp").
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		return newUARTTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// UARTDial is injected by platform code (eg. in main or a tinygo_uart.go).
// It must open and return an io.ReadWriteCloser over the configured UART.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

// uartTransport implements Transport via an injected dial function.
type uartTransport struct {
	cfg TransportConfig
}

func newUARTTransport(cfg TransportConfig) (Transport, error) {
	if cfg.UART == nil {
		return nil, errors.New("uart transport requires uart config")
	}
	return &uartTransport{cfg: cfg}, nil
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, *u.cfg.UART)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	case map[string]any:
		// Already a decoded object (e.g. if provided internally); re-marshal for simplicity.
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
	return cfg, nil
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	msg := s.conn.NewMessage(s.stateTopic, payload, true)
	s.conn.Publish(msg)
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
