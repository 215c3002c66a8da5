package messages

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

//go:embed default.json
var defaultMessages []byte

// MessageText is a push notification template. Body is a fmt format string.
type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Format renders the body with args.
func (m MessageText) Format(args ...any) (title, body string) {
	return m.Title, fmt.Sprintf(m.Body, args...)
}

type Messages struct {
	ExpenseCreated   MessageText `json:"expense_created"`
	PaymentNotified  MessageText `json:"payment_notified"`
	PaymentConfirmed MessageText `json:"payment_confirmed"`
	PaymentRejected  MessageText `json:"payment_rejected"`
	PaidViaProcessor MessageText `json:"paid_via_processor"`
	FriendRequest    MessageText `json:"friend_request"`
}

var (
	loaded   Messages
	loadOnce sync.Once
	loadErr  error
)

// Load parses the embedded defaults and, when path is non-empty, overlays
// the file at path. The result is cached; safe to call from multiple
// goroutines.
func Load(path string) (*Messages, error) {
	loadOnce.Do(func() {
		loaded, loadErr = parse(path)
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return &loaded, nil
}

// Default returns the embedded message set.
func Default() *Messages {
	m, err := parse("")
	if err != nil {
		panic(fmt.Sprintf("embedded messages are invalid: %v", err))
	}
	return &m
}

func parse(path string) (Messages, error) {
	var m Messages
	if err := json.Unmarshal(defaultMessages, &m); err != nil {
		return m, fmt.Errorf("failed to parse default messages: %w", err)
	}
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("failed to read messages file: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse messages file: %w", err)
	}
	return m, nil
}
