package profile

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// UsernameCooldown is the minimum time between two username changes.
const UsernameCooldown = 60 * 24 * time.Hour

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.]{3,30}$`)

// Domain errors
var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrInvalidUsername     = errors.New("username must be 3-30 characters of a-z, 0-9, '_' or '.'")
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
)

// CooldownError reports a username change attempted before the cooldown
// elapsed. It matches ErrUsernameCooldown with errors.Is.
type CooldownError struct {
	NextAllowed time.Time
}

var ErrUsernameCooldown = errors.New("username was changed recently")

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%v; next change allowed on %s", ErrUsernameCooldown, e.NextAllowed.Format("2006-01-02"))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrUsernameCooldown
}

type Profile struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	Username            *string    `json:"username,omitempty"`
	UsernameLastChanged *time.Time `json:"usernameLastChanged,omitempty"`
	AvatarKey           *string    `json:"-"`
	HasAvatar           bool       `json:"hasAvatar"`
	PasswordHash        *string    `json:"-"`
	OAuthProvider       *string    `json:"oauthProvider,omitempty"`
	OAuthID             *string    `json:"-"`
	ProcessorConnected  bool       `json:"processorConnected"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// DisplayName is the name shown to other users.
func (p *Profile) DisplayName() string {
	switch {
	case p.Username != nil && *p.Username != "":
		return *p.Username
	case p.Name != "":
		return p.Name
	default:
		return p.Email
	}
}

// NextUsernameChange returns when the username may next be changed. The
// zero time means a change is allowed right away.
func (p *Profile) NextUsernameChange() time.Time {
	if p.UsernameLastChanged == nil {
		return time.Time{}
	}
	return p.UsernameLastChanged.Add(UsernameCooldown)
}

type CreateProfileParams struct {
	Email         string
	Name          string
	PasswordHash  *string
	OAuthProvider *string
	OAuthID       *string
}

func (p CreateProfileParams) Validate() error {
	if _, err := NormalizeEmail(p.Email); err != nil {
		return err
	}
	if p.PasswordHash == nil && (p.OAuthProvider == nil || p.OAuthID == nil) {
		return errors.New("password or identity provider is required")
	}
	return nil
}

// NormalizeEmail lower-cases and validates an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// ValidateUsername checks the allowed username alphabet and length.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}
