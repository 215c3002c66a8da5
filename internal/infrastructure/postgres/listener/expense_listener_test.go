package listener

import (
	"log/slog"
	"testing"

	"github.com/lib/pq"

	"splitpay/internal/infrastructure/realtime"
)

type recordingPublisher struct {
	events []realtime.Event
}

func (p *recordingPublisher) Publish(ev realtime.Event) {
	p.events = append(p.events, ev)
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantErr   bool
		wantID    string
		wantGroup bool
	}{
		{
			name:    "insert without group",
			payload: `{"op":"INSERT","id":"e1","payer_id":"u1","debtor_email":"bia@example.com","group_id":null,"status":"pending"}`,
			wantID:  "e1",
		},
		{
			name:      "update with group",
			payload:   `{"op":"UPDATE","id":"e2","payer_id":"u1","debtor_email":"bia@example.com","group_id":"g1","status":"paid"}`,
			wantID:    "e2",
			wantGroup: true,
		},
		{
			name:    "malformed",
			payload: `{"op":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if ev.ID != tt.wantID {
				t.Errorf("ID = %s, want %s", ev.ID, tt.wantID)
			}
			if (ev.GroupID != nil) != tt.wantGroup {
				t.Errorf("GroupID = %v, wantGroup %v", ev.GroupID, tt.wantGroup)
			}
		})
	}
}

func TestExpenseListener_HandleNotification(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewExpenseListener("", pub, slog.New(slog.DiscardHandler))

	l.handleNotification(&pq.Notification{Channel: ChannelName, Extra: `{"op":"DELETE","id":"e9","payer_id":"u1","debtor_email":"x@example.com","status":"pending"}`})
	l.handleNotification(&pq.Notification{Channel: ChannelName, Extra: `not json`})

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	if pub.events[0].Op != "DELETE" || pub.events[0].ID != "e9" {
		t.Errorf("event = %+v", pub.events[0])
	}
}
