package paymentmethod

import (
	"context"
	"errors"
	"strings"
	"testing"

	"splitpay/internal/shared/auth"
)

type MockRepository struct {
	CreateFunc       func(ctx context.Context, params CreatePaymentMethodParams) (*PaymentMethod, error)
	ListByUserIDFunc func(ctx context.Context, userID string) ([]*PaymentMethod, error)
	DeleteFunc       func(ctx context.Context, id, userID string) error
}

func (m *MockRepository) Create(ctx context.Context, params CreatePaymentMethodParams) (*PaymentMethod, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return &PaymentMethod{ID: "pm1", UserID: params.UserID, Label: params.Label, Alias: params.Alias}, nil
}

func (m *MockRepository) ListByUserID(ctx context.Context, userID string) ([]*PaymentMethod, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockRepository) Delete(ctx context.Context, id, userID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id, userID)
	}
	return nil
}

var session = auth.Session{UserID: "u1", Email: "ana@example.com"}

func TestService_Create(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		alias   string
		wantErr error
	}{
		{"valid", " Bank ", " ana.alias ", nil},
		{"label at limit", strings.Repeat("a", 64), "alias", nil},
		{"label too long", strings.Repeat("a", 65), "alias", ErrInvalidLabel},
		{"alias at limit", "Bank", strings.Repeat("b", 128), nil},
		{"alias too long", "Bank", strings.Repeat("b", 129), ErrInvalidAlias},
		{"missing label", "", "alias", ErrInvalidLabel},
		{"missing alias", "Bank", "  ", ErrInvalidAlias},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&MockRepository{})
			pm, err := svc.Create(context.Background(), session, tt.label, tt.alias)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if pm.UserID != session.UserID {
				t.Errorf("UserID = %s, want %s", pm.UserID, session.UserID)
			}
			if pm.Label != strings.TrimSpace(tt.label) || pm.Alias != strings.TrimSpace(tt.alias) {
				t.Errorf("fields not trimmed: %+v", pm)
			}
		})
	}
}

func TestService_DeleteScopesToOwner(t *testing.T) {
	var gotUser string
	repo := &MockRepository{
		DeleteFunc: func(ctx context.Context, id, userID string) error {
			gotUser = userID
			if userID != "owner" {
				return ErrPaymentMethodNotFound
			}
			return nil
		},
	}
	svc := NewService(repo)

	err := svc.Delete(context.Background(), session, "pm1")
	if !errors.Is(err, ErrPaymentMethodNotFound) {
		t.Errorf("Delete() error = %v, want ErrPaymentMethodNotFound", err)
	}
	if gotUser != session.UserID {
		t.Errorf("Delete scoped to %q, want %q", gotUser, session.UserID)
	}
}

func TestService_ListNeverNil(t *testing.T) {
	svc := NewService(&MockRepository{})
	methods, err := svc.List(context.Background(), session)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if methods == nil {
		t.Error("List() returned nil slice")
	}
}
