package firebase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"splitpay/internal/domain/notification"
)

// FCM accepts at most this many tokens per multicast.
const fcmBatchLimit = 500

// Client delivers pushes through Firebase Cloud Messaging.
type Client struct {
	msgClient *messaging.Client
}

func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &Client{msgClient: msgClient}, nil
}

// Push sends p to every token, in batches. Tokens FCM rejects as
// unregistered or malformed come back in the report's Stale list.
func (c *Client) Push(ctx context.Context, tokens []string, p notification.Push) (notification.DeliveryReport, error) {
	var report notification.DeliveryReport

	for batch := range slices.Chunk(tokens, fcmBatchLimit) {
		resp, err := c.msgClient.SendEachForMulticast(ctx, buildMessage(batch, p))
		if err != nil {
			return report, fmt.Errorf("failed to send FCM multicast: %w", err)
		}

		report.Delivered += resp.SuccessCount
		report.Failed += resp.FailureCount
		for i, r := range resp.Responses {
			switch {
			case r.Error == nil:
			case messaging.IsUnregistered(r.Error) || messaging.IsInvalidArgument(r.Error):
				report.Stale = append(report.Stale, batch[i])
			default:
				slog.WarnContext(ctx, "FCM send error", "token", redact(batch[i]), "error", r.Error)
			}
		}
	}

	slog.DebugContext(ctx, "FCM push sent",
		"category", p.Category,
		"delivered", report.Delivered,
		"failed", report.Failed,
		"stale", len(report.Stale),
	)
	return report, nil
}

// buildMessage renders p for both platforms. Expense updates are
// time-sensitive (a payer waiting to confirm), so they go out at high
// priority, and the collapse key keeps only the latest state per expense.
func buildMessage(tokens []string, p notification.Push) *messaging.MulticastMessage {
	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: p.Title,
			Body:  p.Body,
		},
		Data: p.Data,
		Android: &messaging.AndroidConfig{
			Priority:    "high",
			CollapseKey: p.CollapseKey,
			Notification: &messaging.AndroidNotification{
				ChannelID: p.Category,
				Tag:       p.CollapseKey,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound:    "default",
					ThreadID: p.Category,
				},
			},
		},
	}
	if p.CollapseKey != "" {
		msg.APNS.Headers["apns-collapse-id"] = p.CollapseKey
	}
	return msg
}

// redact keeps log lines short and avoids writing full device tokens.
func redact(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
