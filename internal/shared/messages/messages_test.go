package messages

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	m := Default()

	texts := map[string]MessageText{
		"expense_created":    m.ExpenseCreated,
		"payment_notified":   m.PaymentNotified,
		"payment_confirmed":  m.PaymentConfirmed,
		"payment_rejected":   m.PaymentRejected,
		"paid_via_processor": m.PaidViaProcessor,
		"friend_request":     m.FriendRequest,
	}
	for key, text := range texts {
		if text.Title == "" || text.Body == "" {
			t.Errorf("%s has empty title or body", key)
		}
	}
}

func TestMessageText_Format(t *testing.T) {
	m := MessageText{Title: "Payment confirmed", Body: "Your payment for %q (%s) was confirmed."}

	title, body := m.Format("Dinner", "$10.00")
	if title != "Payment confirmed" {
		t.Errorf("title = %q", title)
	}
	if want := `Your payment for "Dinner" ($10.00) was confirmed.`; body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestParse_OverlayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	if err := os.WriteFile(path, []byte(`{"payment_confirmed":{"title":"Pago confirmado","body":"%s %s"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := parse(path)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if m.PaymentConfirmed.Title != "Pago confirmado" {
		t.Errorf("overlay not applied: %q", m.PaymentConfirmed.Title)
	}
	if m.ExpenseCreated.Title != "New expense" {
		t.Errorf("defaults lost for untouched keys: %q", m.ExpenseCreated.Title)
	}
}

func TestParse_MissingFile(t *testing.T) {
	if _, err := parse(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("parse() with missing file should fail")
	}
}
