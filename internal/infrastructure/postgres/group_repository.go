package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"splitpay/internal/domain/group"
)

type GroupRepository struct {
	db *DB
}

func NewGroupRepository(db *DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create inserts the group and its members in one transaction.
func (r *GroupRepository) Create(ctx context.Context, params group.CreateGroupParams) (*group.Group, error) {
	var g group.Group

	err := r.db.WithTx(ctx, func(tx *Tx) error {
		err := tx.QueryRowContext(ctx, `
			WITH inserted AS (
				INSERT INTO groups (name, created_by) VALUES ($1, $2)
				RETURNING id, name, created_by, created_at
			)
			SELECT i.id, i.name, i.created_by, p.email, i.created_at
			FROM inserted i JOIN profiles p ON p.id = i.created_by
		`, params.Name, params.CreatedBy).Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatorEmail, &g.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}

		for _, email := range params.Members {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO group_members (group_id, email) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				g.ID, strings.ToLower(email),
			)
			if err != nil {
				return fmt.Errorf("failed to add group member: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.MemberCount = len(params.Members)
	return &g, nil
}

const groupSelect = `
	SELECT g.id, g.name, g.created_by, p.email, g.created_at,
	       (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id)
	FROM groups g
	JOIN profiles p ON p.id = g.created_by
`

func scanGroup(row scanner) (*group.Group, error) {
	var g group.Group
	if err := row.Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatorEmail, &g.CreatedAt, &g.MemberCount); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*group.Group, error) {
	g, err := scanGroup(r.db.QueryRowContext(ctx, groupSelect+` WHERE g.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, group.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

func (r *GroupRepository) ListForEmail(ctx context.Context, email string) ([]*group.Group, error) {
	query := groupSelect + `
		WHERE EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.email = $1)
		ORDER BY g.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, strings.ToLower(email))
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []*group.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *GroupRepository) Members(ctx context.Context, groupID string) ([]*group.Member, error) {
	query := `
		SELECT m.email, COALESCE(p.name, ''), p.id IS NOT NULL, m.added_at
		FROM group_members m
		LEFT JOIN profiles p ON p.email = m.email
		WHERE m.group_id = $1
		ORDER BY m.added_at, m.email
	`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	var members []*group.Member
	for rows.Next() {
		var m group.Member
		if err := rows.Scan(&m.Email, &m.Name, &m.Registered, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

func (r *GroupRepository) AddMember(ctx context.Context, groupID, email string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, email) VALUES ($1, $2)`,
		groupID, strings.ToLower(email),
	)
	if isUniqueViolation(err, "") {
		return group.ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, email string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND email = $2`,
		groupID, strings.ToLower(email),
	)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return requireAffected(result, group.ErrMemberNotFound)
}

// Delete removes the group. Expense rows keep existing with group_id NULL.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return requireAffected(result, group.ErrGroupNotFound)
}
