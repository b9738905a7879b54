package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/observability"
	"goladium-analytics/internal/storage"
)

// WSConfig configures the upstream ledger WebSocket connection.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is timeout for reading messages. Upstream heartbeats must arrive within it.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// subscribeRequest is sent after every (re)connect.
type subscribeRequest struct {
	Op         string   `json:"op"`
	Categories []string `json:"categories"`
	SinceMs    int64    `json:"since_ms,omitempty"`
}

// WSLedgerSource receives ledger events from the upstream WebSocket feed.
// After a reconnect it resubscribes from the last stored position, so the
// feed replays what was missed; the store drops the resulting duplicates.
type WSLedgerSource struct {
	endpoint    string
	categories  []domain.Category
	cursorStore storage.CursorStore
	config      WSConfig
	logger      logrus.FieldLogger
}

// WSLedgerSourceOptions configures a WSLedgerSource.
type WSLedgerSourceOptions struct {
	Endpoint    string
	Categories  []domain.Category // default: both ledgers
	CursorStore storage.CursorStore
	Config      *WSConfig
	Logger      logrus.FieldLogger
}

// NewWSLedgerSource creates a WebSocket ledger source.
func NewWSLedgerSource(opts WSLedgerSourceOptions) *WSLedgerSource {
	cfg := DefaultWSConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	categories := opts.Categories
	if len(categories) == 0 {
		categories = []domain.Category{domain.CategoryFinancial, domain.CategoryInventory}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WSLedgerSource{
		endpoint:    opts.Endpoint,
		categories:  categories,
		cursorStore: opts.CursorStore,
		config:      cfg,
		logger:      logger.WithField("source", "ws:ledger"),
	}
}

// Name returns the cursor key of the feed.
func (s *WSLedgerSource) Name() string {
	return "ws:ledger"
}

// Subscribe connects and streams deliveries until ctx is cancelled.
// The first connection must succeed; later failures reconnect with exponential backoff.
func (s *WSLedgerSource) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery, 100)

	go func() {
		defer close(out)

		delay := s.config.ReconnectDelay
		for {
			received := s.readLoop(ctx, conn, out)
			if ctx.Err() != nil {
				return
			}
			if received {
				delay = s.config.ReconnectDelay
			}

			for {
				observability.RecordSourceReconnect(s.Name())
				s.logger.WithField("delay", delay).Warn("connection lost, reconnecting")

				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}

				// Exponential backoff
				delay *= 2
				if delay > s.config.MaxReconnectDelay {
					delay = s.config.MaxReconnectDelay
				}

				conn, err = s.connect(ctx)
				if err == nil {
					break
				}
				s.logger.WithError(err).Warn("reconnect failed")
			}
		}
	}()

	return out, nil
}

// connect dials the endpoint and sends the subscribe request.
func (s *WSLedgerSource) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	req := subscribeRequest{Op: "subscribe"}
	for _, c := range s.categories {
		req.Categories = append(req.Categories, string(c))
	}
	if s.cursorStore != nil {
		cur, err := s.cursorStore.Get(ctx, s.Name())
		switch {
		case err == nil:
			req.SinceMs = cur.PositionMs
		case !errors.Is(err, storage.ErrNotFound):
			conn.Close()
			return nil, fmt.Errorf("load cursor: %w", err)
		}
	}

	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"categories": req.Categories,
		"since_ms":   req.SinceMs,
	}).Info("subscribed to ledger feed")
	return conn, nil
}

// readLoop forwards messages until the connection fails or ctx is cancelled.
// Reports whether any message was read.
func (s *WSLedgerSource) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- Delivery) bool {
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	received := false
	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WithError(err).Debug("read failed")
			}
			return received
		}
		received = true

		if op := controlOp(message); op != "" {
			s.logger.WithField("op", op).Debug("control frame")
			continue
		}

		events, rejected, err := DecodeEvents(message)
		if err != nil {
			observability.RecordEventRejected("decode")
			s.logger.WithError(err).Warn("skipping undecodable message")
			continue
		}
		for _, r := range rejected {
			observability.RecordEventRejected("invalid")
			s.logger.WithError(r.Err).WithField("index", r.Index).Warn("rejecting invalid event")
		}
		if len(events) == 0 {
			continue
		}
		observability.RecordEventsReceived(s.Name(), len(events))

		select {
		case out <- newDelivery(s.Name(), events, nil):
		case <-ctx.Done():
			return received
		}
	}
}

// controlOp returns the "op" of a control frame such as a subscribe
// confirmation or heartbeat, or "" for event payloads.
func controlOp(message []byte) string {
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var frame struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(trimmed, &frame); err != nil {
		return ""
	}
	return frame.Op
}
