package main

import (
	"context"
	"fmt"
	"log/slog"

	"splitpay/internal/domain/expense"
	"splitpay/internal/domain/friend"
	"splitpay/internal/domain/group"
	"splitpay/internal/domain/notification"
	"splitpay/internal/domain/payment"
	"splitpay/internal/domain/paymentmethod"
	"splitpay/internal/domain/profile"
	"splitpay/internal/infrastructure/crypto"
	"splitpay/internal/infrastructure/firebase"
	"splitpay/internal/infrastructure/mercadopago"
	"splitpay/internal/infrastructure/postgres"
	"splitpay/internal/infrastructure/postgres/listener"
	"splitpay/internal/infrastructure/realtime"
	"splitpay/internal/infrastructure/storage"
	"splitpay/internal/infrastructure/storage/gcs"
	"splitpay/internal/infrastructure/storage/localfs"
	httphandlers "splitpay/internal/interfaces/http"
	"splitpay/internal/shared/auth"
	"splitpay/internal/shared/config"
	"splitpay/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB    *postgres.DB
	Store storage.ObjectStore

	// Handlers
	AuthHandler          *httphandlers.AuthHandler
	ProfileHandler       *httphandlers.ProfileHandler
	FriendHandler        *httphandlers.FriendHandler
	GroupHandler         *httphandlers.GroupHandler
	ExpenseHandler       *httphandlers.ExpenseHandler
	PaymentMethodHandler *httphandlers.PaymentMethodHandler
	NotificationHandler  *httphandlers.NotificationHandler
	EventsHandler        *httphandlers.EventsHandler
	// MercadoPagoHandler is nil when processor credentials are missing.
	MercadoPagoHandler *httphandlers.MercadoPagoHandler

	// Auth
	JWT *auth.JWT

	// Change feed
	Hub      *realtime.Hub
	Listener *listener.ExpenseListener

	// PaymentService drives the token refresh job; nil when disabled.
	PaymentService *payment.Service

	closers []func() error
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	deps.DB = db
	slog.Info("connected to database")

	if err := postgres.Migrate(ctx, db.DB, "up"); err != nil {
		deps.Close()
		return nil, err
	}

	// Initialize encryptor
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		deps.Close()
		return nil, err
	}

	msgs, err := messages.Load(cfg.Messages.File)
	if err != nil {
		deps.Close()
		return nil, err
	}

	store, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Store = store
	if c, ok := store.(interface{ Close() error }); ok {
		deps.closers = append(deps.closers, c.Close)
	}

	// Initialize repositories
	profileRepo := postgres.NewProfileRepository(db, encryptor)
	friendRepo := postgres.NewFriendRepository(db)
	groupRepo := postgres.NewGroupRepository(db)
	expenseRepo := postgres.NewExpenseRepository(db)
	paymentMethodRepo := postgres.NewPaymentMethodRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Push notifications
	var messenger notification.Messenger = notification.LogMessenger{}
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			slog.Warn("firebase disabled", "error", err)
		} else {
			messenger = fcm
			slog.Info("firebase messaging enabled")
		}
	}
	notificationService := notification.NewService(notificationRepo, messenger)

	// Initialize domain services
	profileService := profile.NewService(profileRepo, store)
	friendService := friend.NewService(friendRepo, profileRepo, notificationService, msgs)
	groupService := group.NewService(groupRepo)
	expenseService := expense.NewService(expenseRepo, groupService, profileRepo, store, notificationService, msgs)
	groupService.SetExpenses(expenseService)
	paymentMethodService := paymentmethod.NewService(paymentMethodRepo)

	// Initialize auth components
	deps.JWT = auth.NewJWT(cfg.JWT.Secret)
	var googleOAuth auth.OAuthProvider
	if cfg.OAuth.Google.ClientID != "" {
		googleOAuth = auth.NewGoogleOAuthProvider(
			cfg.OAuth.Google.ClientID,
			cfg.OAuth.Google.ClientSecret,
			cfg.OAuth.Google.CallbackURL,
		)
	}

	// Payment processor
	if cfg.MercadoPago.Enabled() {
		mpClient := mercadopago.NewClient(cfg.MercadoPago.ClientID, cfg.MercadoPago.ClientSecret, cfg.MercadoPago.CallbackURL)
		deps.PaymentService = payment.NewService(payment.ServiceConfig{
			Client:    mpClient,
			Creds:     profileRepo,
			Expenses:  expenseRepo,
			Ledger:    expenseRepo,
			Notifier:  notificationService,
			Messages:  msgs,
			ReturnURL: cfg.MercadoPago.ReturnURL,
		})
		deps.MercadoPagoHandler = httphandlers.NewMercadoPagoHandler(deps.PaymentService)
	} else {
		slog.Warn("mercado pago disabled: MP_CLIENT_ID or MP_CLIENT_SECRET missing")
	}

	// Change feed
	deps.Hub = realtime.NewHub()
	deps.Listener = listener.NewExpenseListener(cfg.Database.ConnectionString(), deps.Hub, slog.Default())

	// Initialize handlers
	deps.AuthHandler = httphandlers.NewAuthHandler(profileService, googleOAuth, deps.JWT)
	deps.ProfileHandler = httphandlers.NewProfileHandler(profileService)
	deps.FriendHandler = httphandlers.NewFriendHandler(friendService)
	deps.GroupHandler = httphandlers.NewGroupHandler(groupService)
	deps.ExpenseHandler = httphandlers.NewExpenseHandler(expenseService)
	deps.PaymentMethodHandler = httphandlers.NewPaymentMethodHandler(paymentMethodService)
	deps.NotificationHandler = httphandlers.NewNotificationHandler(notificationService)
	deps.EventsHandler = httphandlers.NewEventsHandler(deps.Hub)

	return deps, nil
}

// newObjectStore selects GCS when a bucket is configured and the local
// filesystem otherwise.
func newObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	if cfg.Bucket != "" {
		store, err := gcs.New(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to open bucket %s: %w", cfg.Bucket, err)
		}
		slog.Info("object storage: gcs", "bucket", cfg.Bucket)
		return store, nil
	}

	store, err := localfs.New(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage dir %s: %w", cfg.Dir, err)
	}
	slog.Info("object storage: local filesystem", "dir", cfg.Dir)
	return store, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Hub != nil {
		d.Hub.Close()
	}
	for _, c := range d.closers {
		if err := c(); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
