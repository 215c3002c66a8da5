package group

import (
	"errors"
	"strings"
	"time"

	"splitpay/internal/domain/expense"
)

const maxNameLength = 100

// Domain errors
var (
	ErrGroupNotFound     = errors.New("group not found")
	ErrForbidden         = errors.New("access forbidden")
	ErrInvalidName       = errors.New("group name is required (max 100 characters)")
	ErrAlreadyMember     = errors.New("email is already a member of this group")
	ErrMemberNotFound    = errors.New("member not found")
	ErrCannotRemoveOwner = errors.New("the group creator cannot be removed")
)

type Group struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedBy    string    `json:"createdBy"`
	CreatorEmail string    `json:"creatorEmail"`
	MemberCount  int       `json:"memberCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Member is a group participant. Members are identified by email and may
// not have a profile yet.
type Member struct {
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	Registered bool      `json:"registered"`
	AddedAt    time.Time `json:"addedAt"`
}

// Detail is the group page payload.
type Detail struct {
	*Group
	Members  []*Member       `json:"members"`
	Expenses []*expense.View `json:"expenses"`
}

type CreateGroupParams struct {
	Name      string
	CreatedBy string
	Members   []string
}

func (p CreateGroupParams) Validate() error {
	if p.CreatedBy == "" {
		return errors.New("creator is required")
	}
	name := strings.TrimSpace(p.Name)
	if name == "" || len([]rune(name)) > maxNameLength {
		return ErrInvalidName
	}
	if len(p.Members) == 0 {
		return errors.New("at least one member is required")
	}
	return nil
}
