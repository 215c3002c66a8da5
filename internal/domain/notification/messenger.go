package notification

import (
	"context"
	"log/slog"
)

// Push is one notification rendered for delivery to devices.
type Push struct {
	Title    string
	Body     string
	Category string
	Data     map[string]string
	// CollapseKey lets a newer push about the same expense replace an
	// older one the device has not shown yet.
	CollapseKey string
}

// DeliveryReport summarizes one Push call.
type DeliveryReport struct {
	Delivered int
	Failed    int
	// Stale lists tokens the provider reported as permanently invalid.
	Stale []string
}

// Messenger delivers pushes to device tokens. The Firebase client in the
// infrastructure layer implements it.
type Messenger interface {
	Push(ctx context.Context, tokens []string, p Push) (DeliveryReport, error)
}

// LogMessenger is used when no push credentials are configured. It only
// logs what would have been sent.
type LogMessenger struct {
	Logger *slog.Logger
}

func (m LogMessenger) Push(ctx context.Context, tokens []string, p Push) (DeliveryReport, error) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "push skipped (no messenger)", "title", p.Title, "category", p.Category, "tokens", len(tokens))
	return DeliveryReport{}, nil
}
