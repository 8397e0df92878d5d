package publish

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/vk/cigraph/internal/ctxlog"
	"github.com/vk/cigraph/internal/taskgraph"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultEvent is the event name graphs are emitted under.
const DefaultEvent = "taskgraph"

const defaultTimeout = 15 * time.Second

// SocketIOConfig describes the scheduler endpoint.
type SocketIOConfig struct {
	URL                string
	Namespace          string
	Event              string
	AckEvent           string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// SocketIOPublisher emits graphs to a socket.io server.
type SocketIOPublisher struct {
	cfg    SocketIOConfig
	client *socket.Socket
	logger *slog.Logger
}

// ErrNotConnected is returned when the connection dropped before Publish.
var ErrNotConnected = errors.New("socket.io client is not connected")

// DialSocketIO connects to the scheduler and blocks until the connection is
// accepted, refused, or ctx ends.
func DialSocketIO(ctx context.Context, cfg SocketIOConfig) (*SocketIOPublisher, error) {
	if cfg.Event == "" {
		cfg.Event = DefaultEvent
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	logger := ctxlog.FromContext(ctx).With("publisher", "socketio", "url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("publish URL %q must be absolute", cfg.URL)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connected := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to scheduler.", "sid", io.Id())
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})

	logger.Debug("Connecting to scheduler.")
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketIOPublisher{cfg: cfg, client: io, logger: logger}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(cfg.Timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", cfg.Timeout)
	}
}

// Publish emits g. With an AckEvent configured it also waits for the
// scheduler's reply.
func (p *SocketIOPublisher) Publish(ctx context.Context, g *taskgraph.Graph) error {
	if g == nil {
		return fmt.Errorf("nothing to publish")
	}
	if !p.client.Connected() {
		return ErrNotConnected
	}
	data, err := toWire(g)
	if err != nil {
		return err
	}

	var acked chan struct{}
	if p.cfg.AckEvent != "" {
		acked = make(chan struct{}, 1)
		p.client.Once(types.EventName(p.cfg.AckEvent), func(...any) {
			acked <- struct{}{}
		})
	}

	p.logger.Debug("Emitting graph.", "event", p.cfg.Event, "tasks", len(g.Tasks))
	if err := p.client.Emit(p.cfg.Event, data); err != nil {
		return fmt.Errorf("failed to emit %q: %w", p.cfg.Event, err)
	}
	if acked == nil {
		return nil
	}

	select {
	case <-acked:
		p.logger.Info("Scheduler acknowledged graph.", "event", p.cfg.AckEvent)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for %q: %w", p.cfg.AckEvent, ctx.Err())
	case <-time.After(p.cfg.Timeout):
		return fmt.Errorf("timed out after %v waiting for %q", p.cfg.Timeout, p.cfg.AckEvent)
	}
}

// Close disconnects from the scheduler.
func (p *SocketIOPublisher) Close() error {
	p.logger.Info("Disconnecting from scheduler.", "sid", p.client.Id())
	p.client.Disconnect()
	return nil
}
