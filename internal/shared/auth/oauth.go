package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var ErrUnverifiedEmail = errors.New("identity provider did not verify the email")

// OAuthProvider is an authorization-code sign-in provider using PKCE. The
// caller keeps the verifier between AuthURL and Exchange.
type OAuthProvider interface {
	Name() string
	AuthURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	UserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error)
}

type OAuthUserInfo struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string
}

// NewOAuthVerifier returns a fresh PKCE code verifier.
func NewOAuthVerifier() string {
	return oauth2.GenerateVerifier()
}

// GoogleOAuthProvider signs users in with their Google account.
type GoogleOAuthProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleOAuthProvider(clientID, clientSecret, redirectURL string) *GoogleOAuthProvider {
	return &GoogleOAuthProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (g *GoogleOAuthProvider) Name() string { return "google" }

func (g *GoogleOAuthProvider) AuthURL(state, verifier string) string {
	return g.config.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

func (g *GoogleOAuthProvider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	token, err := g.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("google code exchange: %w", err)
	}
	return token, nil
}

// googleClaims is the OpenID Connect userinfo document.
type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// UserInfo fetches the signed-in account. Accounts without a verified
// email are refused since profiles are matched by email.
func (g *GoogleOAuthProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("google userinfo request: %w", err)
	}

	resp, err := g.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("google userinfo: status %d: %s", resp.StatusCode, body)
	}

	var claims googleClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("google userinfo: decode: %w", err)
	}
	if claims.Subject == "" || claims.Email == "" || !claims.EmailVerified {
		return nil, ErrUnverifiedEmail
	}

	return &OAuthUserInfo{
		ID:        claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		AvatarURL: claims.Picture,
	}, nil
}
