package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
)

// MockRepository is a mock implementation of Repository interface
type MockRepository struct {
	UpsertDeviceTokenFunc       func(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error)
	GetActiveTokensByUserIDFunc func(ctx context.Context, userID string) ([]*DeviceToken, error)
	DeactivateTokenFunc         func(ctx context.Context, token string) error
	DeleteDeviceTokenFunc       func(ctx context.Context, userID, token string) error
	GetUserIDByEmailFunc        func(ctx context.Context, email string) (string, error)
	CreateNotificationFunc      func(ctx context.Context, params CreateNotificationParams) (*Notification, error)
	ListByUserIDFunc            func(ctx context.Context, userID string, page Page) (*Inbox, error)
	MarkOpenedFunc              func(ctx context.Context, notificationID, userID string) error
	MarkAllOpenedFunc           func(ctx context.Context, userID string) (int, error)
}

func (m *MockRepository) UpsertDeviceToken(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error) {
	if m.UpsertDeviceTokenFunc != nil {
		return m.UpsertDeviceTokenFunc(ctx, params)
	}
	return &DeviceToken{UserID: params.UserID, Token: params.Token, Platform: params.Platform, IsActive: true}, nil
}

func (m *MockRepository) GetActiveTokensByUserID(ctx context.Context, userID string) ([]*DeviceToken, error) {
	if m.GetActiveTokensByUserIDFunc != nil {
		return m.GetActiveTokensByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockRepository) DeactivateToken(ctx context.Context, token string) error {
	if m.DeactivateTokenFunc != nil {
		return m.DeactivateTokenFunc(ctx, token)
	}
	return nil
}

func (m *MockRepository) DeleteDeviceToken(ctx context.Context, userID, token string) error {
	if m.DeleteDeviceTokenFunc != nil {
		return m.DeleteDeviceTokenFunc(ctx, userID, token)
	}
	return nil
}

func (m *MockRepository) GetUserIDByEmail(ctx context.Context, email string) (string, error) {
	if m.GetUserIDByEmailFunc != nil {
		return m.GetUserIDByEmailFunc(ctx, email)
	}
	return "", ErrRecipientNotFound
}

func (m *MockRepository) CreateNotification(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
	if m.CreateNotificationFunc != nil {
		return m.CreateNotificationFunc(ctx, params)
	}
	return &Notification{UserID: params.UserID, Title: params.Title}, nil
}

func (m *MockRepository) ListByUserID(ctx context.Context, userID string, page Page) (*Inbox, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID, page)
	}
	return &Inbox{Page: page}, nil
}

func (m *MockRepository) MarkOpened(ctx context.Context, notificationID, userID string) error {
	if m.MarkOpenedFunc != nil {
		return m.MarkOpenedFunc(ctx, notificationID, userID)
	}
	return nil
}

func (m *MockRepository) MarkAllOpened(ctx context.Context, userID string) (int, error) {
	if m.MarkAllOpenedFunc != nil {
		return m.MarkAllOpenedFunc(ctx, userID)
	}
	return 0, nil
}

// MockMessenger records pushes
type MockMessenger struct {
	mu     sync.Mutex
	sent   [][]string
	pushes []Push
	report DeliveryReport
	err    error
}

func (m *MockMessenger) Push(ctx context.Context, tokens []string, p Push) (DeliveryReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, tokens)
	m.pushes = append(m.pushes, p)
	return m.report, m.err
}

func TestCreateDeviceTokenParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  CreateDeviceTokenParams
		wantErr error
	}{
		{"valid", CreateDeviceTokenParams{UserID: "u1", Token: "tok", Platform: "android"}, nil},
		{"missing token", CreateDeviceTokenParams{UserID: "u1", Platform: "ios"}, ErrInvalidToken},
		{"bad platform", CreateDeviceTokenParams{UserID: "u1", Token: "tok", Platform: "symbian"}, ErrInvalidPlatform},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.params.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_SendToUser(t *testing.T) {
	var stored CreateNotificationParams
	repo := &MockRepository{
		GetActiveTokensByUserIDFunc: func(ctx context.Context, userID string) ([]*DeviceToken, error) {
			return []*DeviceToken{{Token: "t1"}, {Token: "t2"}}, nil
		},
		CreateNotificationFunc: func(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
			stored = params
			return &Notification{}, nil
		},
	}
	messenger := &MockMessenger{}
	svc := NewService(repo, messenger)

	err := svc.SendToUser(t.Context(), "u1", "Payment confirmed", "body", CategoryPayments, map[string]string{"expense_id": "e1"})
	if err != nil {
		t.Fatalf("SendToUser() error = %v", err)
	}

	if stored.UserID != "u1" || stored.Category != CategoryPayments {
		t.Errorf("stored notification = %+v", stored)
	}
	if len(messenger.sent) != 1 || len(messenger.sent[0]) != 2 {
		t.Fatalf("multicast sends = %v, want one send to 2 tokens", messenger.sent)
	}
	push := messenger.pushes[0]
	if push.Data["route"] != CategoryPayments || push.Data["expense_id"] != "e1" {
		t.Errorf("push data = %v", push.Data)
	}
	if push.CollapseKey != "e1" || push.Category != CategoryPayments {
		t.Errorf("push = %+v, want collapse key e1", push)
	}
}

func TestService_SendToUser_DeactivatesStaleTokens(t *testing.T) {
	var deactivated []string
	repo := &MockRepository{
		GetActiveTokensByUserIDFunc: func(ctx context.Context, userID string) ([]*DeviceToken, error) {
			return []*DeviceToken{{Token: "live"}, {Token: "uninstalled"}}, nil
		},
		DeactivateTokenFunc: func(ctx context.Context, token string) error {
			deactivated = append(deactivated, token)
			return nil
		},
	}
	messenger := &MockMessenger{report: DeliveryReport{Delivered: 1, Failed: 1, Stale: []string{"uninstalled"}}}
	svc := NewService(repo, messenger)

	if err := svc.SendToUser(t.Context(), "u1", "t", "b", CategoryFriends, nil); err != nil {
		t.Fatalf("SendToUser() error = %v", err)
	}
	if len(deactivated) != 1 || deactivated[0] != "uninstalled" {
		t.Errorf("deactivated = %v, want [uninstalled]", deactivated)
	}
	if messenger.pushes[0].CollapseKey != "" {
		t.Errorf("collapse key = %q without an expense", messenger.pushes[0].CollapseKey)
	}
}

func TestService_SendToUser_PushFailureIsNotReturned(t *testing.T) {
	repo := &MockRepository{
		GetActiveTokensByUserIDFunc: func(ctx context.Context, userID string) ([]*DeviceToken, error) {
			return []*DeviceToken{{Token: "t1"}}, nil
		},
	}
	svc := NewService(repo, &MockMessenger{err: errors.New("fcm unavailable")})

	if err := svc.SendToUser(t.Context(), "u1", "t", "b", CategoryExpenses, nil); err != nil {
		t.Errorf("SendToUser() error = %v, want nil", err)
	}
}

func TestService_SendToUser_InvalidCategory(t *testing.T) {
	svc := NewService(&MockRepository{}, &MockMessenger{})

	if err := svc.SendToUser(t.Context(), "u1", "t", "b", "marketing", nil); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("SendToUser() error = %v, want ErrInvalidCategory", err)
	}
}

func TestService_SendToEmails_SkipsUnregistered(t *testing.T) {
	var mu sync.Mutex
	var notified []string
	repo := &MockRepository{
		GetUserIDByEmailFunc: func(ctx context.Context, email string) (string, error) {
			if email == "ghost@example.com" {
				return "", ErrRecipientNotFound
			}
			return "id-" + email, nil
		},
		CreateNotificationFunc: func(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
			mu.Lock()
			notified = append(notified, params.UserID)
			mu.Unlock()
			return &Notification{}, nil
		},
	}
	svc := NewService(repo, nil)

	emails := []string{"b@example.com", "ghost@example.com", "c@example.com"}
	if err := svc.SendToEmails(t.Context(), emails, "New expense", "body", CategoryExpenses, map[string]string{"group_id": "g1"}); err != nil {
		t.Fatalf("SendToEmails() error = %v", err)
	}

	sort.Strings(notified)
	if len(notified) != 2 || notified[0] != "id-b@example.com" || notified[1] != "id-c@example.com" {
		t.Errorf("notified = %v, want b and c", notified)
	}
}

func TestService_ListNotifications_NormalizesPaging(t *testing.T) {
	tests := []struct {
		name string
		in   Page
		want Page
	}{
		{"Zero Values", Page{}, Page{Number: 1, Size: 20}},
		{"Negative Page", Page{Number: -3, Size: 10}, Page{Number: 1, Size: 10}},
		{"Oversized", Page{Number: 2, Size: 500}, Page{Number: 2, Size: 100}},
		{"In Range", Page{Number: 4, Size: 50}, Page{Number: 4, Size: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Page
			repo := &MockRepository{
				ListByUserIDFunc: func(ctx context.Context, userID string, page Page) (*Inbox, error) {
					got = page
					return &Inbox{Page: page}, nil
				},
			}
			svc := NewService(repo, nil)

			if _, err := svc.ListNotifications(t.Context(), "u1", tt.in); err != nil {
				t.Fatalf("ListNotifications() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("page = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInbox_Pages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{5, 0, 0},
	}
	for _, tt := range tests {
		inbox := &Inbox{Total: tt.total, Page: Page{Number: 1, Size: tt.size}}
		if got := inbox.Pages(); got != tt.want {
			t.Errorf("Pages(total=%d, size=%d) = %d, want %d", tt.total, tt.size, got, tt.want)
		}
	}
}

func TestService_MarkAllOpened(t *testing.T) {
	var gotUser string
	repo := &MockRepository{
		MarkAllOpenedFunc: func(ctx context.Context, userID string) (int, error) {
			gotUser = userID
			return 3, nil
		},
	}
	svc := NewService(repo, nil)

	n, err := svc.MarkAllOpened(t.Context(), "u1")
	if err != nil || n != 3 || gotUser != "u1" {
		t.Errorf("MarkAllOpened() = %d, %v (user %q); want 3, nil (u1)", n, err, gotUser)
	}
	if _, err := svc.MarkAllOpened(t.Context(), ""); err == nil {
		t.Error("MarkAllOpened(\"\") succeeded, want error")
	}
}
