package mercadopago

import (
	"context"
)

// ClientInterface defines the methods required from the Mercado Pago API client
type ClientInterface interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (*Credentials, error)
	CreatePreference(ctx context.Context, accessToken string, pref Preference) (*PreferenceResponse, error)
	GetPayment(ctx context.Context, accessToken, paymentID string) (*Payment, error)
}
