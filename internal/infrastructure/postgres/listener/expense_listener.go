package listener

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"splitpay/internal/infrastructure/realtime"
)

const (
	// ChannelName matches the pg_notify channel used by the expenses trigger.
	ChannelName       = "expense_changes"
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
)

// Publisher receives decoded change events.
type Publisher interface {
	Publish(ev realtime.Event)
}

// ExpenseListener listens for PostgreSQL notifications on expense changes
// and forwards them to a Publisher.
type ExpenseListener struct {
	connStr    string
	publisher  Publisher
	logger     *slog.Logger
	shutdownCh chan struct{}
	done       chan struct{}
}

// NewExpenseListener creates a new listener for expense change notifications
func NewExpenseListener(connStr string, publisher Publisher, logger *slog.Logger) *ExpenseListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpenseListener{
		connStr:    connStr,
		publisher:  publisher,
		logger:     logger.With("component", "expense_listener"),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening for notifications in a background goroutine
func (l *ExpenseListener) Start(ctx context.Context) {
	go l.listen(ctx)
	l.logger.Info("expense change listener started")
}

// Stop gracefully shuts down the listener
func (l *ExpenseListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	l.logger.Info("expense change listener stopped")
}

func (l *ExpenseListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		// Wait before reconnecting
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			l.logger.Info("reconnecting to PostgreSQL for notifications")
		}
	}
}

func (l *ExpenseListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			l.logger.Info("connected to notification channel", "channel", ChannelName)
		case pq.ListenerEventDisconnected:
			l.logger.Warn("disconnected from notification channel", "error", err)
		case pq.ListenerEventReconnected:
			l.logger.Info("reconnected to notification channel", "channel", ChannelName)
		case pq.ListenerEventConnectionAttemptFailed:
			l.logger.Warn("connection attempt failed", "error", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(ChannelName); err != nil {
		l.logger.Error("failed to listen on channel", "channel", ChannelName, "error", err)
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// pq.Listener re-established the connection; events in the gap are lost
				l.logger.Warn("notification connection reset")
				continue
			}
			l.handleNotification(n)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn("listener ping failed", "error", err)
				}
			}()
		}
	}
}

func (l *ExpenseListener) handleNotification(n *pq.Notification) {
	ev, err := DecodeEvent(n.Extra)
	if err != nil {
		l.logger.Warn("failed to parse notification payload", "channel", n.Channel, "error", err)
		return
	}
	l.logger.Debug("expense changed", "op", ev.Op, "expense_id", ev.ID, "status", ev.Status)
	l.publisher.Publish(ev)
}

// DecodeEvent parses a trigger payload.
func DecodeEvent(payload string) (realtime.Event, error) {
	var ev realtime.Event
	err := json.Unmarshal([]byte(payload), &ev)
	return ev, err
}
