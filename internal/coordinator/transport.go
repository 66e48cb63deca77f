package coordinator

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/taskgridgo/internal/ctxlog"
)

// Transport moves events between peers. Implementations must deliver a
// peer's events in emission order.
type Transport interface {
	// Broadcast sends one event to every other peer.
	Broadcast(ctx context.Context, ev *Event) error
	// Events yields inbound events. The channel closes when the transport
	// shuts down.
	Events() <-chan *Event
	// Close tears the transport down.
	Close() error
}

// eventName is the socket.io event both directions use on the relay hub.
const eventName = "grid:event"

// SocketIOTransport exchanges events through a socket.io relay hub. The hub
// re-emits everything it receives to all other connected peers.
type SocketIOTransport struct {
	io     *socket.Socket
	events chan *Event
}

// SocketIOOptions configures DialSocketIO.
type SocketIOOptions struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
}

// DialSocketIO connects to the relay hub and subscribes to peer events.
func DialSocketIO(ctx context.Context, opts SocketIOOptions) (*SocketIOTransport, error) {
	logger := ctxlog.FromContext(ctx).With("transport", "socketio", "url", opts.URL)
	logger.Info("Connecting to relay hub...")

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	sockOpts := socket.DefaultOptions()
	sockOpts.SetPath(parsedURL.Path)
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sockOpts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sockOpts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sockOpts)
	io := manager.Socket(opts.Namespace, sockOpts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to relay hub", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		connectChan <- errs[0].(error)
	})

	t := &SocketIOTransport{io: io, events: make(chan *Event, 64)}
	io.On(types.EventName(eventName), t.onEvent(logger))

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return t, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(15 * time.Second):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after 15s waiting for socket.io connection")
	}
}

// onEvent decodes a relayed payload into an Event and queues it for Merge.
func (t *SocketIOTransport) onEvent(logger *slog.Logger) func(...any) {
	return func(args ...any) {
		if len(args) == 0 {
			return
		}
		raw, err := json.Marshal(args[0])
		if err != nil {
			logger.Warn("Dropping undecodable peer event.", "error", err)
			return
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.Warn("Dropping malformed peer event.", "error", err)
			return
		}
		select {
		case t.events <- &ev:
		default:
			logger.Warn("Inbound event buffer full, dropping event.", "peer", ev.Peer, "seq", ev.Seq)
		}
	}
}

// Broadcast implements Transport.
func (t *SocketIOTransport) Broadcast(ctx context.Context, ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	t.io.Emit(eventName, decoded)
	return nil
}

// Events implements Transport.
func (t *SocketIOTransport) Events() <-chan *Event {
	return t.events
}

// Close implements Transport.
func (t *SocketIOTransport) Close() error {
	t.io.Disconnect()
	close(t.events)
	return nil
}
