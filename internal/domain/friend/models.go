package friend

import (
	"errors"
	"time"
)

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
)

// Domain errors
var (
	ErrFriendshipNotFound = errors.New("friend request not found")
	ErrAlreadyExists      = errors.New("a friend request already exists between these users")
	ErrSelfRequest        = errors.New("cannot send a friend request to yourself")
	ErrUserNotFound       = errors.New("no user with that email or username")
	ErrNotPending         = errors.New("friend request is not pending")
	ErrForbidden          = errors.New("access forbidden")
)

// Friendship is a request or accepted relation between two profiles. Once
// accepted it is symmetric.
type Friendship struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requesterId"`
	ReceiverID  string    `json:"receiverId"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Involves reports whether userID is one of the two parties.
func (f *Friendship) Involves(userID string) bool {
	return f.RequesterID == userID || f.ReceiverID == userID
}

// Friend is a friendship seen from one side, with the other party's profile.
type Friend struct {
	FriendshipID string    `json:"friendshipId"`
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Username     *string   `json:"username,omitempty"`
	Status       string    `json:"status"`
	Incoming     bool      `json:"incoming"`
	CreatedAt    time.Time `json:"createdAt"`
}

// List groups a user's relations the way the friends page shows them.
type List struct {
	Friends  []*Friend `json:"friends"`
	Incoming []*Friend `json:"incoming"`
	Outgoing []*Friend `json:"outgoing"`
}
