package firebase

import (
	"strings"
	"testing"

	"splitpay/internal/domain/notification"
)

func TestBuildMessage(t *testing.T) {
	tests := []struct {
		name string
		push notification.Push
	}{
		{
			name: "Expense Update",
			push: notification.Push{
				Title:       "Payment confirmed",
				Body:        "Ana confirmed your payment for Dinner",
				Category:    notification.CategoryPayments,
				Data:        map[string]string{"expense_id": "e-1", "route": "payments"},
				CollapseKey: "e-1",
			},
		},
		{
			name: "Friend Request",
			push: notification.Push{
				Title:    "New friend request",
				Body:     "bob wants to split expenses with you",
				Category: notification.CategoryFriends,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := buildMessage([]string{"tok-a", "tok-b"}, tt.push)

			if len(msg.Tokens) != 2 || msg.Notification.Title != tt.push.Title || msg.Notification.Body != tt.push.Body {
				t.Errorf("message = %+v", msg)
			}
			if msg.Android.Priority != "high" || msg.Android.Notification.ChannelID != tt.push.Category {
				t.Errorf("android = %+v", msg.Android)
			}
			if msg.Android.CollapseKey != tt.push.CollapseKey {
				t.Errorf("android collapse key = %q, want %q", msg.Android.CollapseKey, tt.push.CollapseKey)
			}
			if msg.APNS.Payload.Aps.ThreadID != tt.push.Category {
				t.Errorf("apns thread = %q", msg.APNS.Payload.Aps.ThreadID)
			}

			collapse, ok := msg.APNS.Headers["apns-collapse-id"]
			if tt.push.CollapseKey == "" && ok {
				t.Errorf("apns-collapse-id = %q without a collapse key", collapse)
			}
			if tt.push.CollapseKey != "" && collapse != tt.push.CollapseKey {
				t.Errorf("apns-collapse-id = %q, want %q", collapse, tt.push.CollapseKey)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	if got := redact("short"); got != "short" {
		t.Errorf("redact(short) = %q", got)
	}
	if got := redact(strings.Repeat("a", 40)); got != "aaaaaaaa..." {
		t.Errorf("redact(long) = %q", got)
	}
}
