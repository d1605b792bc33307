package remote

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the pluggable reliable ordered byte stream a BusConnector
// sends Frames over. Per the remote transport's goal, an actor never knows
// whether its peer is local or remote; Transport is the one place that
// distinction is concrete. Send/Recv operate on whole frames (one
// EncodeFrame result per call) so a message-framed implementation (the
// WebSocket transport below) never needs to hunt for frame boundaries
// itself.
type Transport interface {
	// Send writes one frame. It must preserve per-connection order.
	Send(ctx context.Context, frame []byte) error

	// Recv blocks for the next frame, or returns an error (wrapping
	// ErrTransportClosed) once the connection is gone.
	Recv(ctx context.Context) ([]byte, error)

	// Close releases the underlying connection. Safe to call more than
	// once.
	Close() error
}

// wsTransport adapts a *websocket.Conn to Transport: a custom dialer with
// enlarged buffers, one physical connection per logical link, writes
// serialized under a mutex since gorilla/websocket forbids concurrent
// writers.
type wsTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

const (
	wsReadBufferSize  = 1 << 20
	wsWriteBufferSize = 1 << 16
	wsMaxMessageBytes = 64 << 20
)

var dialer = websocket.Dialer{
	ReadBufferSize:  wsReadBufferSize,
	WriteBufferSize: wsWriteBufferSize,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsReadBufferSize,
	WriteBufferSize: wsWriteBufferSize,
}

// DialWebSocket establishes an outbound connection to a peer Universe's
// listener, used by the outbound half of a BusConnector pair.
func DialWebSocket(ctx context.Context, url string) (Transport, error) {
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransportClosed, url, err)
	}

	conn.SetReadLimit(wsMaxMessageBytes)

	return newWSTransport(conn), nil
}

// AcceptWebSocket upgrades an inbound HTTP request to a WebSocket
// connection, used by the listening side of a BusConnector pair.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request) (Transport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: upgrade: %v", ErrTransportClosed, err)
	}

	conn.SetReadLimit(wsMaxMessageBytes)

	return newWSTransport(conn), nil
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn, closed: make(chan struct{})}
}

func (t *wsTransport) Send(ctx context.Context, frame []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}

	return nil
}

func (t *wsTransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-t.closed:
		return nil, ErrTransportClosed
	default:
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	}

	kind, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}

	if kind != websocket.BinaryMessage {
		return t.Recv(ctx)
	}

	return data, nil
}

func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}

// pipeTransport is an in-process Transport backed by two channels, used to
// bridge two Universes in the same process without an actual socket while
// keeping the forwarding semantics a socket would give.
type pipeTransport struct {
	out chan []byte
	in  chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPipe returns a connected pair of in-process Transports: writes to
// one's Send arrive on the other's Recv, and vice versa.
func NewPipe() (a, b Transport) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	closed := make(chan struct{})

	ta := &pipeTransport{out: ab, in: ba, closed: closed}
	tb := &pipeTransport{out: ba, in: ab, closed: closed}

	return ta, tb
}

func (p *pipeTransport) Send(ctx context.Context, frame []byte) error {
	cp := append([]byte(nil), frame...)
	select {
	case p.out <- cp:
		return nil
	case <-p.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeTransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	case <-p.closed:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

var _ Transport = (*wsTransport)(nil)
var _ Transport = (*pipeTransport)(nil)

// backoff tracks the exponential reconnect delay used while a Connector's
// dial loop retries, capped at maxReconnectBackoff.
type backoff struct {
	cur time.Duration
}

const (
	initialReconnectBackoff = 500 * time.Millisecond
	maxReconnectBackoff     = 30 * time.Second
)

func (b *backoff) next() time.Duration {
	if b.cur == 0 {
		b.cur = initialReconnectBackoff
		return b.cur
	}

	b.cur *= 2
	if b.cur > maxReconnectBackoff {
		b.cur = maxReconnectBackoff
	}

	return b.cur
}

func (b *backoff) reset() { b.cur = 0 }
