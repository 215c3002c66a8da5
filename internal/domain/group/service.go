package group

import (
	"context"
	"slices"
	"strings"

	"splitpay/internal/domain/expense"
	"splitpay/internal/domain/profile"
	"splitpay/internal/infrastructure/storage"
	"splitpay/internal/shared/auth"
)

type Service struct {
	repo     Repository
	expenses Expenses
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SetExpenses wires the expense service. The two services depend on each
// other: expenses resolve group members through MemberEmails.
func (s *Service) SetExpenses(expenses Expenses) {
	s.expenses = expenses
}

// Create makes a group. The creator is always a member.
func (s *Service) Create(ctx context.Context, session auth.Session, name string, members []string) (*Group, error) {
	emails := []string{strings.ToLower(session.Email)}
	for _, m := range members {
		email, err := profile.NormalizeEmail(m)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(emails, email) {
			emails = append(emails, email)
		}
	}

	params := CreateGroupParams{
		Name:      strings.TrimSpace(name),
		CreatedBy: session.UserID,
		Members:   emails,
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, params)
}

// List returns the groups the caller belongs to.
func (s *Service) List(ctx context.Context, session auth.Session) ([]*Group, error) {
	return s.repo.ListForEmail(ctx, strings.ToLower(session.Email))
}

// Detail returns a group with members and expenses. Members only.
func (s *Service) Detail(ctx context.Context, session auth.Session, id string) (*Detail, error) {
	g, members, err := s.loadForMember(ctx, session, id)
	if err != nil {
		return nil, err
	}

	expenses := []*expense.View{}
	if s.expenses != nil {
		expenses, err = s.expenses.ListForGroup(ctx, session, id)
		if err != nil {
			return nil, err
		}
	}
	return &Detail{Group: g, Members: members, Expenses: expenses}, nil
}

// AddMember adds an email to the group. Any member may add.
func (s *Service) AddMember(ctx context.Context, session auth.Session, groupID, email string) error {
	email, err := profile.NormalizeEmail(email)
	if err != nil {
		return err
	}
	if _, _, err := s.loadForMember(ctx, session, groupID); err != nil {
		return err
	}
	return s.repo.AddMember(ctx, groupID, email)
}

// RemoveMember removes an email from the group. Any member may remove
// anyone but the creator.
func (s *Service) RemoveMember(ctx context.Context, session auth.Session, groupID, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	g, _, err := s.loadForMember(ctx, session, groupID)
	if err != nil {
		return err
	}
	if strings.EqualFold(g.CreatorEmail, email) {
		return ErrCannotRemoveOwner
	}
	return s.repo.RemoveMember(ctx, groupID, email)
}

// Delete removes the group. Creator only; its expenses survive ungrouped.
func (s *Service) Delete(ctx context.Context, session auth.Session, id string) error {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if g.CreatedBy != session.UserID {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}

// CreateExpense fans a group expense out to the selected members.
func (s *Service) CreateExpense(ctx context.Context, session auth.Session, groupID string, in expense.NewGroupExpense, receipt *storage.Upload) ([]*expense.Expense, error) {
	if _, err := s.repo.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	return s.expenses.CreateForGroup(ctx, session, groupID, in, receipt)
}

// MemberEmails lists the member emails of a group.
func (s *Service) MemberEmails(ctx context.Context, groupID string) ([]string, error) {
	members, err := s.repo.Members(ctx, groupID)
	if err != nil {
		return nil, err
	}
	emails := make([]string, len(members))
	for i, m := range members {
		emails[i] = m.Email
	}
	return emails, nil
}

func (s *Service) loadForMember(ctx context.Context, session auth.Session, id string) (*Group, []*Member, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	members, err := s.repo.Members(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	isMember := slices.ContainsFunc(members, func(m *Member) bool {
		return strings.EqualFold(m.Email, session.Email)
	})
	if !isMember {
		return nil, nil, ErrForbidden
	}
	return g, members, nil
}
