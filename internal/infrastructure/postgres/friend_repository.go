package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"splitpay/internal/domain/friend"
)

type FriendRepository struct {
	db *DB
}

func NewFriendRepository(db *DB) *FriendRepository {
	return &FriendRepository{db: db}
}

func (r *FriendRepository) Create(ctx context.Context, requesterID, receiverID string) (*friend.Friendship, error) {
	query := `
		INSERT INTO friends (requester_id, receiver_id)
		VALUES ($1, $2)
		RETURNING id, requester_id, receiver_id, status, created_at
	`

	var f friend.Friendship
	err := r.db.QueryRowContext(ctx, query, requesterID, receiverID).Scan(
		&f.ID, &f.RequesterID, &f.ReceiverID, &f.Status, &f.CreatedAt,
	)
	if isUniqueViolation(err, "idx_friends_pair") {
		return nil, friend.ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create friend request: %w", err)
	}
	return &f, nil
}

func (r *FriendRepository) GetByID(ctx context.Context, id string) (*friend.Friendship, error) {
	query := `SELECT id, requester_id, receiver_id, status, created_at FROM friends WHERE id = $1`

	var f friend.Friendship
	err := r.db.QueryRowContext(ctx, query, id).Scan(&f.ID, &f.RequesterID, &f.ReceiverID, &f.Status, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, friend.ErrFriendshipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get friend request: %w", err)
	}
	return &f, nil
}

// ExistsBetween checks for a relation in either direction.
func (r *FriendRepository) ExistsBetween(ctx context.Context, userA, userB string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM friends
			WHERE (requester_id = $1 AND receiver_id = $2)
			   OR (requester_id = $2 AND receiver_id = $1)
		)
	`, userA, userB).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return exists, nil
}

func (r *FriendRepository) Accept(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE friends SET status = 'accepted' WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to accept friend request: %w", err)
	}
	return requireAffected(result, friend.ErrNotPending)
}

func (r *FriendRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM friends WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete friendship: %w", err)
	}
	return requireAffected(result, friend.ErrFriendshipNotFound)
}

// ListForUser returns every relation of userID with the other party's profile.
func (r *FriendRepository) ListForUser(ctx context.Context, userID string) ([]*friend.Friend, error) {
	query := `
		SELECT f.id, p.id, p.email, p.name, p.username, f.status, f.receiver_id = $1, f.created_at
		FROM friends f
		JOIN profiles p ON p.id = CASE WHEN f.requester_id = $1 THEN f.receiver_id ELSE f.requester_id END
		WHERE f.requester_id = $1 OR f.receiver_id = $1
		ORDER BY p.name, p.email
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	var friends []*friend.Friend
	for rows.Next() {
		var f friend.Friend
		if err := rows.Scan(&f.FriendshipID, &f.UserID, &f.Email, &f.Name, &f.Username, &f.Status, &f.Incoming, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, &f)
	}
	return friends, rows.Err()
}
