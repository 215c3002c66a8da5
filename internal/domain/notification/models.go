package notification

import (
	"errors"
	"slices"
	"time"
)

// Categories double as Android channel IDs and iOS thread IDs.
const (
	CategoryExpenses = "expenses"
	CategoryFriends  = "friends"
	CategoryPayments = "payments"
)

var (
	categories = []string{CategoryExpenses, CategoryFriends, CategoryPayments}
	platforms  = []string{"ios", "android", "web"}
)

var (
	ErrDeviceTokenNotFound  = errors.New("device token not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrRecipientNotFound    = errors.New("recipient has no profile")
	ErrInvalidCategory      = errors.New("invalid notification category")
	ErrInvalidPlatform      = errors.New("platform must be 'ios', 'android' or 'web'")
	ErrInvalidToken         = errors.New("device token is required")
	errMissingUser          = errors.New("user ID is required")
)

// DeviceToken is one installed app instance that can receive pushes.
// Tokens move between users when someone signs in on a shared device.
type DeviceToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
}

// Notification is an inbox entry. Data carries the deep-link keys
// ("route", "expense_id") the app needs to open the right screen.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Category  string
	Data      map[string]string
	OpenedAt  *time.Time
	CreatedAt time.Time
}

func (n *Notification) Unread() bool { return n.OpenedAt == nil }

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page selects a window of an inbox. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// Normalize replaces out-of-range values with the defaults.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = defaultPageSize
	}
	p.Size = min(p.Size, maxPageSize)
	return p
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// Inbox is one page of a user's notifications plus inbox-wide counts.
type Inbox struct {
	Notifications []*Notification
	Page          Page
	Total         int
	Unread        int
}

// Pages is the number of pages at the current page size.
func (i *Inbox) Pages() int {
	if i.Page.Size == 0 {
		return 0
	}
	return (i.Total + i.Page.Size - 1) / i.Page.Size
}

type CreateDeviceTokenParams struct {
	UserID   string
	Token    string
	Platform string
}

func (p CreateDeviceTokenParams) Validate() error {
	switch {
	case p.UserID == "":
		return errMissingUser
	case p.Token == "":
		return ErrInvalidToken
	case !IsValidPlatform(p.Platform):
		return ErrInvalidPlatform
	}
	return nil
}

type CreateNotificationParams struct {
	UserID   string
	Title    string
	Message  string
	Category string
	Data     map[string]string
}

func (p CreateNotificationParams) Validate() error {
	switch {
	case p.UserID == "":
		return errMissingUser
	case p.Title == "" || p.Message == "":
		return errors.New("notification title and message are required")
	case !IsValidCategory(p.Category):
		return ErrInvalidCategory
	}
	return nil
}

func IsValidCategory(c string) bool { return slices.Contains(categories, c) }

func IsValidPlatform(p string) bool { return slices.Contains(platforms, p) }
