package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultAPIURL   = "https://api.mercadopago.com"
	defaultAuthURL  = "https://auth.mercadopago.com/authorization"
	defaultTimeout  = 30 * time.Second
	tokenPath       = "/oauth/token"
	preferencesPath = "/checkout/preferences"
	paymentsPath    = "/v1/payments/"
)

// Payment statuses reported by the processor
const (
	PaymentApproved = "approved"
	PaymentPending  = "pending"
	PaymentRejected = "rejected"
)

// ErrPaymentNotFound is returned when the processor does not know the payment id.
var ErrPaymentNotFound = errors.New("payment not found")

// Client handles communication with the Mercado Pago API
type Client struct {
	httpClient *http.Client
	baseURL    string
	oauth      *oauth2.Config
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points both the API and the OAuth endpoints at baseURL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
		c.oauth.Endpoint.TokenURL = baseURL + tokenPath
		c.oauth.Endpoint.AuthURL = baseURL + "/authorization"
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new Mercado Pago API client for the marketplace
// application identified by clientID.
func NewClient(clientID, clientSecret, redirectURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: defaultAPIURL,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   defaultAuthURL,
				TokenURL:  defaultAPIURL + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credentials are the seller tokens granted by the authorization flow.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	ExpiresAt    time.Time
}

// Item is one checkout line.
type Item struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id,omitempty"`
}

// BackURLs are where the processor sends the buyer after checkout.
type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// Preference is a hosted checkout request.
type Preference struct {
	Items             []Item   `json:"items"`
	ExternalReference string   `json:"external_reference"`
	BackURLs          BackURLs `json:"back_urls"`
	AutoReturn        string   `json:"auto_return,omitempty"`
}

// PreferenceResponse carries the hosted checkout URL.
type PreferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// Payment is the subset of the payment resource used to verify a return.
type Payment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
}

// ErrorResponse represents an API error payload
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}

// AuthURL returns the seller authorization URL for state.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("platform_id", "mp"))
}

// Exchange trades an authorization code for seller credentials.
func (c *Client) Exchange(ctx context.Context, code string) (*Credentials, error) {
	token, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return credentialsFromToken(token)
}

// Refresh uses a refresh token to obtain new credentials.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	source := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return credentialsFromToken(token)
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func credentialsFromToken(token *oauth2.Token) (*Credentials, error) {
	if token.AccessToken == "" {
		return nil, errors.New("token response has no access token")
	}

	creds := &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}

	// user_id is a JSON number in the token response
	switch v := token.Extra("user_id").(type) {
	case float64:
		creds.UserID = strconv.FormatInt(int64(v), 10)
	case string:
		creds.UserID = v
	case json.Number:
		creds.UserID = v.String()
	}
	return creds, nil
}

// CreatePreference creates a hosted checkout on behalf of the seller whose
// access token is given.
func (c *Client) CreatePreference(ctx context.Context, accessToken string, pref Preference) (*PreferenceResponse, error) {
	payload, err := json.Marshal(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preference: %w", err)
	}

	var resp PreferenceResponse
	if _, err := c.do(ctx, http.MethodPost, c.baseURL+preferencesPath, accessToken, payload, &resp); err != nil {
		return nil, err
	}
	if resp.InitPoint == "" {
		return nil, errors.New("preference response has no init_point")
	}
	return &resp, nil
}

// GetPayment fetches a payment with the seller's access token.
func (c *Client) GetPayment(ctx context.Context, accessToken, paymentID string) (*Payment, error) {
	var payment Payment
	status, err := c.do(ctx, http.MethodGet, c.baseURL+paymentsPath+url.PathEscape(paymentID), accessToken, nil, &payment)
	if status == http.StatusNotFound {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, accessToken string, payload []byte, out any) (int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
			return resp.StatusCode, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}
		return resp.StatusCode, fmt.Errorf("API error (status %d): %s - %s", resp.StatusCode, errResp.Error, errResp.Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return resp.StatusCode, nil
}
