package client

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"reliefdesk/internal/realtime"
)

var ErrChannelUnavailable = errors.New("notification channel unavailable")

type StreamKind string

const (
	KindConnected    StreamKind = "connected"
	KindEvent        StreamKind = "event"
	KindDisconnected StreamKind = "disconnected"
	KindUnavailable  StreamKind = "unavailable"
)

// StreamEvent is one observation from the push channel.
type StreamEvent struct {
	Kind    StreamKind
	Event   realtime.Event
	Err     error
	Attempt int
}

// Backoff bounds reconnect attempts. Delay doubles from Base up to Max.
// Jitter is the fraction of each delay that may be shaved off at random.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      float64
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: 0.2, MaxAttempts: 8}
}

// Delay returns the wait before the given attempt (1-based), in
// [(1-Jitter)*d, d] where d is the capped exponential step.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.step(attempt)
	if b.Jitter <= 0 || d <= 0 {
		return d
	}
	j := min(b.Jitter, 1)
	return d - time.Duration(rand.Float64()*j*float64(d))
}

func (b Backoff) step(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := b.Factor
	if factor < 1 {
		factor = 2
	}
	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= factor
		if d >= float64(b.Max) {
			return b.Max
		}
	}
	if b.Max > 0 && time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

// Channel keeps a WebSocket connection to /ws/notifications open and
// reports what happens to it on Events.
type Channel struct {
	url     string
	token   string
	dialer  *websocket.Dialer
	backoff Backoff
	events  chan StreamEvent
	log     logrus.FieldLogger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewChannel(wsURL, token string, backoff Backoff, log logrus.FieldLogger) *Channel {
	if backoff.MaxAttempts <= 0 {
		backoff.MaxAttempts = DefaultBackoff().MaxAttempts
	}
	if backoff.Base <= 0 {
		backoff.Base = DefaultBackoff().Base
	}
	if backoff.Max <= 0 {
		backoff.Max = DefaultBackoff().Max
	}
	return &Channel{
		url:     wsURL,
		token:   token,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		backoff: backoff,
		events:  make(chan StreamEvent, 64),
		log:     log,
	}
}

func (c *Channel) Events() <-chan StreamEvent { return c.events }

// Run connects and reconnects until ctx ends (nil) or the attempts run out
// (ErrChannelUnavailable, after an unavailable event).
//
// A connection only resets the attempt count once the server has sent its
// ready event. One that drops before that counts as a failed attempt.
func (c *Channel) Run(ctx context.Context) error {
	failures := 0
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			c.emit(ctx, StreamEvent{Kind: KindConnected})
			var healthy bool
			healthy, err = c.read(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			c.emit(ctx, StreamEvent{Kind: KindDisconnected, Err: err})
			if healthy {
				failures = 0
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		failures++
		c.log.WithError(err).WithField("attempt", failures).Warn("notification channel lost")
		if failures >= c.backoff.MaxAttempts {
			c.emit(ctx, StreamEvent{Kind: KindUnavailable, Err: err, Attempt: failures})
			return ErrChannelUnavailable
		}
		if !sleep(ctx, c.backoff.Delay(failures)) {
			return nil
		}
	}
}

// Close drops the current connection, if any.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed"),
		time.Now().Add(time.Second),
	)
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

// read pumps events until the connection fails. ready reports whether the
// server's ready event arrived first.
func (c *Channel) read(ctx context.Context, conn *websocket.Conn) (ready bool, err error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-stop:
		}
	}()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		var ev realtime.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return ready, err
		}
		if ev.Type == realtime.EventReady {
			ready = true
		}
		if !c.emit(ctx, StreamEvent{Kind: KindEvent, Event: ev}) {
			return ready, ctx.Err()
		}
	}
}

func (c *Channel) emit(ctx context.Context, msg StreamEvent) bool {
	select {
	case c.events <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
