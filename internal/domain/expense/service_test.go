package expense

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"splitpay/internal/infrastructure/storage"
	"splitpay/internal/shared/messages"
)

// MockRepository is a mock implementation of Repository interface
type MockRepository struct {
	CreateBatchFunc       func(ctx context.Context, params []CreateParams) ([]*Expense, error)
	GetByIDFunc           func(ctx context.Context, id string) (*Expense, error)
	ListByPayerFunc       func(ctx context.Context, payerID string) ([]*Expense, error)
	ListByDebtorFunc      func(ctx context.Context, debtorEmail string) ([]*Expense, error)
	ListByGroupFunc       func(ctx context.Context, groupID string) ([]*Expense, error)
	UpdateStatusFunc      func(ctx context.Context, id, from, to string) (*Expense, error)
	DeleteFunc            func(ctx context.Context, id string) error
	CountByReceiptKeyFunc func(ctx context.Context, key string) (int, error)
}

func (m *MockRepository) CreateBatch(ctx context.Context, params []CreateParams) ([]*Expense, error) {
	if m.CreateBatchFunc != nil {
		return m.CreateBatchFunc(ctx, params)
	}
	out := make([]*Expense, len(params))
	for i, p := range params {
		out[i] = &Expense{
			ID:             "e" + string(rune('1'+i)),
			Description:    p.Description,
			OriginalAmount: p.OriginalAmount,
			Amount:         p.Amount,
			PayerID:        p.PayerID,
			DebtorEmail:    p.DebtorEmail,
			GroupID:        p.GroupID,
			ReceiptKey:     p.ReceiptKey,
			HasReceipt:     p.ReceiptKey != nil,
			Method:         p.Method,
			MethodDetails:  p.MethodDetails,
			Status:         StatusPending,
		}
	}
	return out, nil
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*Expense, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, ErrExpenseNotFound
}

func (m *MockRepository) ListByPayer(ctx context.Context, payerID string) ([]*Expense, error) {
	if m.ListByPayerFunc != nil {
		return m.ListByPayerFunc(ctx, payerID)
	}
	return nil, nil
}

func (m *MockRepository) ListByDebtor(ctx context.Context, debtorEmail string) ([]*Expense, error) {
	if m.ListByDebtorFunc != nil {
		return m.ListByDebtorFunc(ctx, debtorEmail)
	}
	return nil, nil
}

func (m *MockRepository) ListByGroup(ctx context.Context, groupID string) ([]*Expense, error) {
	if m.ListByGroupFunc != nil {
		return m.ListByGroupFunc(ctx, groupID)
	}
	return nil, nil
}

func (m *MockRepository) UpdateStatus(ctx context.Context, id, from, to string) (*Expense, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, from, to)
	}
	return nil, ErrExpenseNotFound
}

func (m *MockRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockRepository) CountByReceiptKey(ctx context.Context, key string) (int, error) {
	if m.CountByReceiptKeyFunc != nil {
		return m.CountByReceiptKeyFunc(ctx, key)
	}
	return 0, nil
}

type MockGroups struct {
	Members []string
}

func (m *MockGroups) MemberEmails(ctx context.Context, groupID string) ([]string, error) {
	return m.Members, nil
}

type MockAccounts struct {
	Connected bool
}

func (m *MockAccounts) ProcessorConnected(ctx context.Context, userID string) (bool, error) {
	return m.Connected, nil
}

type sentNotification struct {
	to    string
	title string
	body  string
}

type MockNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (m *MockNotifier) record(to, title, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentNotification{to: to, title: title, body: body})
}

func (m *MockNotifier) SendToUser(ctx context.Context, userID, title, body, category string, data map[string]string) error {
	m.record(userID, title, body)
	return nil
}

func (m *MockNotifier) SendToEmail(ctx context.Context, email, title, body, category string, data map[string]string) error {
	m.record(email, title, body)
	return nil
}

func (m *MockNotifier) SendToEmails(ctx context.Context, emails []string, title, body, category string, data map[string]string) error {
	for _, e := range emails {
		m.record(e, title, body)
	}
	return nil
}

// MockStore is an in-memory ObjectStore
type MockStore struct {
	PutErr  error
	objects map[string][]byte
	deleted []string
}

func (m *MockStore) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = data
	return nil
}

func (m *MockStore) Open(ctx context.Context, key string) (*storage.Object, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.Object{Body: io.NopCloser(bytes.NewReader(data)), ContentType: "image/png", Size: int64(len(data))}, nil
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	delete(m.objects, key)
	return nil
}

func newTestService(repo *MockRepository, groups *MockGroups, accounts *MockAccounts, store *MockStore, notifier *MockNotifier) *Service {
	if groups == nil {
		groups = &MockGroups{}
	}
	if accounts == nil {
		accounts = &MockAccounts{}
	}
	if store == nil {
		store = &MockStore{}
	}
	return NewService(repo, groups, accounts, store, notifier, messages.Default())
}

func pngUpload() *storage.Upload {
	return &storage.Upload{ContentType: "image/png", Size: 4, Body: strings.NewReader("\x89PNG")}
}

func TestService_Create(t *testing.T) {
	tests := []struct {
		name       string
		input      NewExpense
		connected  bool
		wantAmount string
		wantErr    error
	}{
		{
			name:       "even split cash",
			input:      NewExpense{Description: "Dinner", Total: decimal.RequireFromString("80"), DebtorEmail: " Debtor@Example.com ", SplitEvenly: true, Method: MethodCash},
			wantAmount: "40",
		},
		{
			name:       "transfer with alias",
			input:      NewExpense{Description: "Taxi", Total: decimal.RequireFromString("25.50"), DebtorEmail: "debtor@example.com", Method: MethodTransfer, MethodDetails: "my.alias"},
			wantAmount: "25.5",
		},
		{
			name:    "transfer without alias",
			input:   NewExpense{Description: "Taxi", Total: decimal.RequireFromString("25"), DebtorEmail: "debtor@example.com", Method: MethodTransfer},
			wantErr: ErrMissingMethodDetails,
		},
		{
			name:    "self debt",
			input:   NewExpense{Description: "Lunch", Total: decimal.RequireFromString("10"), DebtorEmail: "PAYER@example.com", Method: MethodCash},
			wantErr: ErrSelfDebt,
		},
		{
			name:    "link without processor",
			input:   NewExpense{Description: "Lunch", Total: decimal.RequireFromString("10"), DebtorEmail: "debtor@example.com", Method: MethodLink},
			wantErr: ErrProcessorNotConnected,
		},
		{
			name:       "link with processor",
			input:      NewExpense{Description: "Lunch", Total: decimal.RequireFromString("10"), DebtorEmail: "debtor@example.com", Method: MethodLink},
			connected:  true,
			wantAmount: "10",
		},
		{
			name:    "blank description",
			input:   NewExpense{Description: "  ", Total: decimal.RequireFromString("10"), DebtorEmail: "debtor@example.com", Method: MethodCash},
			wantErr: ErrInvalidDescription,
		},
		{
			name:    "unknown method",
			input:   NewExpense{Description: "Lunch", Total: decimal.RequireFromString("10"), DebtorEmail: "debtor@example.com", Method: "pix"},
			wantErr: ErrInvalidMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &MockNotifier{}
			svc := newTestService(&MockRepository{}, nil, &MockAccounts{Connected: tt.connected}, nil, notifier)

			got, err := svc.Create(context.Background(), payer, tt.input, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if len(notifier.sent) != 0 {
					t.Errorf("expected no notifications, got %d", len(notifier.sent))
				}
				return
			}
			if !got.Amount.Equal(decimal.RequireFromString(tt.wantAmount)) {
				t.Errorf("Amount = %s, want %s", got.Amount, tt.wantAmount)
			}
			if got.DebtorEmail != "debtor@example.com" {
				t.Errorf("DebtorEmail = %q, want normalized", got.DebtorEmail)
			}
			if len(notifier.sent) != 1 || notifier.sent[0].to != "debtor@example.com" {
				t.Errorf("notifications = %+v, want one to debtor", notifier.sent)
			}
		})
	}
}

func TestService_CreateReceipt(t *testing.T) {
	t.Run("upload failure aborts", func(t *testing.T) {
		inserted := false
		repo := &MockRepository{
			CreateBatchFunc: func(ctx context.Context, params []CreateParams) ([]*Expense, error) {
				inserted = true
				return nil, nil
			},
		}
		store := &MockStore{PutErr: errors.New("bucket unavailable")}
		svc := newTestService(repo, nil, nil, store, &MockNotifier{})

		_, err := svc.Create(context.Background(), payer, NewExpense{
			Description: "Dinner", Total: decimal.RequireFromString("10"), DebtorEmail: "debtor@example.com", Method: MethodCash,
		}, pngUpload())
		if err == nil {
			t.Fatal("expected error")
		}
		if inserted {
			t.Error("expense inserted despite failed upload")
		}
	})

	t.Run("insert failure removes object", func(t *testing.T) {
		repo := &MockRepository{
			CreateBatchFunc: func(ctx context.Context, params []CreateParams) ([]*Expense, error) {
				return nil, errors.New("db down")
			},
		}
		store := &MockStore{}
		svc := newTestService(repo, nil, nil, store, &MockNotifier{})

		_, err := svc.Create(context.Background(), payer, NewExpense{
			Description: "Dinner", Total: decimal.RequireFromString("10"), DebtorEmail: "debtor@example.com", Method: MethodCash,
		}, pngUpload())
		if err == nil {
			t.Fatal("expected error")
		}
		if len(store.deleted) != 1 || len(store.objects) != 0 {
			t.Errorf("orphaned receipt not removed: deleted=%v objects=%d", store.deleted, len(store.objects))
		}
	})

	t.Run("receipt key stored", func(t *testing.T) {
		store := &MockStore{}
		svc := newTestService(&MockRepository{}, nil, nil, store, &MockNotifier{})

		got, err := svc.Create(context.Background(), payer, NewExpense{
			Description: "Dinner", Total: decimal.RequireFromString("10"), DebtorEmail: "debtor@example.com", Method: MethodCash,
		}, pngUpload())
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if got.ReceiptKey == nil || !strings.HasPrefix(*got.ReceiptKey, "receipts/"+payer.UserID+"/") {
			t.Errorf("ReceiptKey = %v", got.ReceiptKey)
		}
		if _, ok := store.objects[*got.ReceiptKey]; !ok {
			t.Error("receipt not stored")
		}
	})
}

func TestService_CreateForGroup(t *testing.T) {
	groups := &MockGroups{Members: []string{"payer@example.com", "bia@example.com", "caio@example.com"}}

	t.Run("all members by default", func(t *testing.T) {
		notifier := &MockNotifier{}
		svc := newTestService(&MockRepository{}, groups, nil, &MockStore{}, notifier)

		got, err := svc.CreateForGroup(context.Background(), payer, "g1", NewGroupExpense{
			Description: "Trip", Total: decimal.RequireFromString("300"), Method: MethodCash,
		}, pngUpload())
		if err != nil {
			t.Fatalf("CreateForGroup() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("rows = %d, want 2", len(got))
		}
		for _, e := range got {
			if !e.Amount.Equal(decimal.NewFromInt(100)) {
				t.Errorf("Amount = %s, want 100", e.Amount)
			}
			if e.GroupID == nil || *e.GroupID != "g1" {
				t.Errorf("GroupID = %v, want g1", e.GroupID)
			}
			if !e.OriginalAmount.Equal(decimal.NewFromInt(300)) {
				t.Errorf("OriginalAmount = %s, want 300", e.OriginalAmount)
			}
		}
		if *got[0].ReceiptKey != *got[1].ReceiptKey {
			t.Error("rows should share one receipt")
		}
		if len(notifier.sent) != 2 {
			t.Errorf("notifications = %d, want 2", len(notifier.sent))
		}
	})

	t.Run("non member participant", func(t *testing.T) {
		svc := newTestService(&MockRepository{}, groups, nil, nil, &MockNotifier{})
		_, err := svc.CreateForGroup(context.Background(), payer, "g1", NewGroupExpense{
			Description: "Trip", Total: decimal.RequireFromString("300"), Method: MethodCash,
			Participants: []string{"bia@example.com", "stranger@example.com"},
		}, nil)
		if !errors.Is(err, ErrNotGroupMember) {
			t.Errorf("error = %v, want ErrNotGroupMember", err)
		}
	})

	t.Run("caller not member", func(t *testing.T) {
		svc := newTestService(&MockRepository{}, groups, nil, nil, &MockNotifier{})
		_, err := svc.CreateForGroup(context.Background(), other, "g1", NewGroupExpense{
			Description: "Trip", Total: decimal.RequireFromString("300"), Method: MethodCash,
		}, nil)
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("error = %v, want ErrForbidden", err)
		}
	})

	t.Run("only payer selected", func(t *testing.T) {
		svc := newTestService(&MockRepository{}, groups, nil, nil, &MockNotifier{})
		_, err := svc.CreateForGroup(context.Background(), payer, "g1", NewGroupExpense{
			Description: "Trip", Total: decimal.RequireFromString("300"), Method: MethodCash,
			Participants: []string{"payer@example.com"},
		}, nil)
		if !errors.Is(err, ErrNoParticipants) {
			t.Errorf("error = %v, want ErrNoParticipants", err)
		}
	})
}

func TestService_Act(t *testing.T) {
	t.Run("notify paid reaches payer", func(t *testing.T) {
		notifier := &MockNotifier{}
		var gotFrom, gotTo string
		repo := &MockRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*Expense, error) {
				return testExpense(StatusPending, MethodCash), nil
			},
			UpdateStatusFunc: func(ctx context.Context, id, from, to string) (*Expense, error) {
				gotFrom, gotTo = from, to
				return testExpense(to, MethodCash), nil
			},
		}
		svc := newTestService(repo, nil, nil, nil, notifier)

		v, err := svc.Act(context.Background(), debtor, "e1", ActionNotifyPaid)
		if err != nil {
			t.Fatalf("Act() error = %v", err)
		}
		if gotFrom != StatusPending || gotTo != StatusWaitingApproval {
			t.Errorf("UpdateStatus(%s, %s)", gotFrom, gotTo)
		}
		if v.Status != StatusWaitingApproval || v.Role != "debtor" {
			t.Errorf("view = %+v", v)
		}
		if len(notifier.sent) != 1 || notifier.sent[0].to != payer.UserID {
			t.Errorf("notifications = %+v, want payer", notifier.sent)
		}
	})

	t.Run("concurrent change loses", func(t *testing.T) {
		repo := &MockRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*Expense, error) {
				return testExpense(StatusWaitingApproval, MethodCash), nil
			},
			UpdateStatusFunc: func(ctx context.Context, id, from, to string) (*Expense, error) {
				return nil, ErrInvalidTransition
			},
		}
		notifier := &MockNotifier{}
		svc := newTestService(repo, nil, nil, nil, notifier)

		if _, err := svc.Act(context.Background(), payer, "e1", ActionConfirm); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("error = %v, want ErrInvalidTransition", err)
		}
		if len(notifier.sent) != 0 {
			t.Error("no notification expected on lost race")
		}
	})

	t.Run("wrong role", func(t *testing.T) {
		repo := &MockRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*Expense, error) {
				return testExpense(StatusWaitingApproval, MethodCash), nil
			},
		}
		svc := newTestService(repo, nil, nil, nil, &MockNotifier{})
		if _, err := svc.Act(context.Background(), debtor, "e1", ActionConfirm); !errors.Is(err, ErrForbidden) {
			t.Errorf("error = %v, want ErrForbidden", err)
		}
	})
}

func TestService_Get(t *testing.T) {
	repo := &MockRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*Expense, error) {
			return testExpense(StatusPending, MethodLink), nil
		},
	}
	svc := newTestService(repo, nil, nil, nil, &MockNotifier{})

	if _, err := svc.Get(context.Background(), other, "e1"); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger error = %v, want ErrForbidden", err)
	}
	v, err := svc.Get(context.Background(), debtor, "e1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(v.Actions) != 1 || v.Actions[0] != ActionCheckout {
		t.Errorf("Actions = %v, want [checkout]", v.Actions)
	}
}

func TestService_Delete(t *testing.T) {
	key := "receipts/u-payer/r.png"
	withReceipt := func() *Expense {
		e := testExpense(StatusPaid, MethodCash)
		e.ReceiptKey = &key
		return e
	}

	t.Run("debtor cannot delete", func(t *testing.T) {
		repo := &MockRepository{GetByIDFunc: func(ctx context.Context, id string) (*Expense, error) { return withReceipt(), nil }}
		svc := newTestService(repo, nil, nil, nil, &MockNotifier{})
		if err := svc.Delete(context.Background(), debtor, "e1"); !errors.Is(err, ErrForbidden) {
			t.Errorf("error = %v, want ErrForbidden", err)
		}
	})

	t.Run("shared receipt kept", func(t *testing.T) {
		store := &MockStore{}
		repo := &MockRepository{
			GetByIDFunc:           func(ctx context.Context, id string) (*Expense, error) { return withReceipt(), nil },
			CountByReceiptKeyFunc: func(ctx context.Context, k string) (int, error) { return 1, nil },
		}
		svc := newTestService(repo, nil, nil, store, &MockNotifier{})
		if err := svc.Delete(context.Background(), payer, "e1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if len(store.deleted) != 0 {
			t.Errorf("deleted = %v, want none", store.deleted)
		}
	})

	t.Run("last reference removes receipt", func(t *testing.T) {
		store := &MockStore{}
		repo := &MockRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*Expense, error) { return withReceipt(), nil },
		}
		svc := newTestService(repo, nil, nil, store, &MockNotifier{})
		if err := svc.Delete(context.Background(), payer, "e1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if len(store.deleted) != 1 || store.deleted[0] != key {
			t.Errorf("deleted = %v, want [%s]", store.deleted, key)
		}
	})
}

func TestSummarize(t *testing.T) {
	owed := testExpense(StatusPending, MethodCash)
	owed.Amount = decimal.RequireFromString("40")
	paid := testExpense(StatusPaid, MethodCash)
	paid.Amount = decimal.RequireFromString("99")
	iOwe := &Expense{PayerID: "u-debtor", PayerEmail: "debtor@example.com", PayerName: "Deb", DebtorEmail: payer.Email, Amount: decimal.RequireFromString("15"), Status: StatusWaitingApproval}
	settled := &Expense{PayerID: "u-x", PayerEmail: "x@example.com", DebtorEmail: payer.Email, Amount: decimal.RequireFromString("5"), Status: StatusPending}
	back := testExpense(StatusPending, MethodCash)
	back.DebtorEmail = "x@example.com"
	back.Amount = decimal.RequireFromString("5")

	ledger := &Ledger{
		OwedToMe: views([]*Expense{owed, paid, back}, payer),
		IOwe:     views([]*Expense{iOwe, settled}, payer),
	}

	got := Summarize(ledger)
	if len(got) != 1 {
		t.Fatalf("balances = %+v, want one", got)
	}
	if got[0].Email != "debtor@example.com" || !got[0].Net.Equal(decimal.RequireFromString("25")) || got[0].Name != "Deb" {
		t.Errorf("balance = %+v, want debtor@example.com net 25", got[0])
	}
}
