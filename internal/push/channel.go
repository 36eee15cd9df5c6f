package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Event kinds the backend broadcasts. Payloads are advisory; consumers must
// treat every event as a full-refresh trigger because events carry too little
// information to apply incrementally.
const (
	EventNewLoan    = "NEW_LOAN"
	EventLoanRepaid = "LOAN_REPAID"
)

// Event is one push notification. Data is never interpreted by this client.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Handler receives events from a subscription. It is called from the
// subscription's reader goroutine.
type Handler func(Event)

// Channel subscribes to the backend's push endpoint. Delivery is at-most-once
// and best-effort: a dropped connection means silent loss of pending
// notifications, never an error. The channel is advisory, not a system of
// record.
type Channel struct {
	endpoint string
	logger   *slog.Logger
}

// NewChannel creates a channel for the deployment-configured endpoint.
func NewChannel(endpoint string, logger *slog.Logger) *Channel {
	return &Channel{endpoint: endpoint, logger: logger}
}

// Subscribe opens the connection and starts delivering events to onEvent.
// The returned subscription must be closed when the consumer is torn down.
func (c *Channel) Subscribe(ctx context.Context, onEvent Handler) (*Subscription, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to push endpoint %s: %w", c.endpoint, err)
	}

	sub := &Subscription{
		conn:   conn,
		done:   make(chan struct{}),
		logger: c.logger,
	}
	go sub.readLoop(onEvent)

	c.logger.Info("push channel subscribed", "endpoint", c.endpoint)
	return sub, nil
}

// Subscription is a live push connection. Close releases it deterministically
// on every teardown path, including one racing an in-flight event.
type Subscription struct {
	conn      *websocket.Conn
	done      chan struct{}
	logger    *slog.Logger
	closeOnce sync.Once
}

func (s *Subscription) readLoop(onEvent Handler) {
	defer close(s.done)
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			// Dropped connection: pending notifications are lost silently.
			s.logger.Info("push channel closed", "reason", err)
			return
		}

		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.logger.Warn("discarding malformed push message", "error", err)
			continue
		}
		onEvent(ev)
	}
}

// Done is closed once the reader has stopped, whether by Close or by the
// server dropping the connection.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close releases the connection and waits for the reader goroutine to exit.
// It is safe to call more than once and on every teardown path.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
		<-s.done
	})
	return err
}
