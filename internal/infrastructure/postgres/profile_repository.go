package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"splitpay/internal/domain/friend"
	"splitpay/internal/domain/payment"
	"splitpay/internal/domain/profile"
	"splitpay/internal/infrastructure/crypto"
)

const profileColumns = `
	id, email, name, username, username_last_changed, avatar_key, password_hash,
	oauth_provider, oauth_id, mp_access_token IS NOT NULL, created_at, updated_at
`

// ProfileRepository stores profiles. Processor tokens are encrypted before
// they reach the database.
type ProfileRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

func NewProfileRepository(db *DB, encryptor *crypto.Encryptor) *ProfileRepository {
	return &ProfileRepository{db: db, encryptor: encryptor}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*profile.Profile, error) {
	var p profile.Profile
	err := row.Scan(
		&p.ID, &p.Email, &p.Name, &p.Username, &p.UsernameLastChanged, &p.AvatarKey, &p.PasswordHash,
		&p.OAuthProvider, &p.OAuthID, &p.ProcessorConnected, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.HasAvatar = p.AvatarKey != nil
	return &p, nil
}

func (r *ProfileRepository) Create(ctx context.Context, params profile.CreateProfileParams) (*profile.Profile, error) {
	query := `
		INSERT INTO profiles (email, name, password_hash, oauth_provider, oauth_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + profileColumns

	p, err := scanProfile(r.db.QueryRowContext(ctx, query,
		strings.ToLower(params.Email), params.Name, params.PasswordHash, params.OAuthProvider, params.OAuthID,
	))
	if isUniqueViolation(err, "profiles_email_key") {
		return nil, profile.ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) getOne(ctx context.Context, where string, arg any) (*profile.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE ` + where

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*profile.Profile, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*profile.Profile, error) {
	return r.getOne(ctx, "email = $1", strings.ToLower(email))
}

func (r *ProfileRepository) GetByUsername(ctx context.Context, username string) (*profile.Profile, error) {
	return r.getOne(ctx, "username = $1", strings.ToLower(username))
}

func (r *ProfileRepository) GetByOAuth(ctx context.Context, provider, oauthID string) (*profile.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE oauth_provider = $1 AND oauth_id = $2`

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, provider, oauthID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) LinkOAuth(ctx context.Context, id, provider, oauthID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET oauth_provider = $2, oauth_id = $3, updated_at = NOW() WHERE id = $1`,
		id, provider, oauthID,
	)
	if err != nil {
		return fmt.Errorf("failed to link identity provider: %w", err)
	}
	return requireAffected(result, profile.ErrProfileNotFound)
}

func (r *ProfileRepository) UpdateUsername(ctx context.Context, id, username string, changedAt time.Time) (*profile.Profile, error) {
	query := `
		UPDATE profiles
		SET username = $2, username_last_changed = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id, username, changedAt))
	if isUniqueViolation(err, "profiles_username_key") {
		return nil, profile.ErrUsernameTaken
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update username: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) UpdateAvatar(ctx context.Context, id, avatarKey string) (*profile.Profile, error) {
	query := `
		UPDATE profiles SET avatar_key = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id, avatarKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update avatar: %w", err)
	}
	return p, nil
}

// FindRecipient resolves an email address or a username.
func (r *ProfileRepository) FindRecipient(ctx context.Context, identifier string) (*friend.Recipient, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	var rec friend.Recipient
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM profiles WHERE email = $1 OR username = $1 LIMIT 1`,
		identifier,
	).Scan(&rec.ID, &rec.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, friend.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recipient: %w", err)
	}
	return &rec, nil
}

func (r *ProfileRepository) ProcessorConnected(ctx context.Context, userID string) (bool, error) {
	var connected bool
	err := r.db.QueryRowContext(ctx,
		`SELECT mp_access_token IS NOT NULL FROM profiles WHERE id = $1`,
		userID,
	).Scan(&connected)
	if errors.Is(err, sql.ErrNoRows) {
		return false, profile.ErrProfileNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to check processor connection: %w", err)
	}
	return connected, nil
}

// tokenBinding ties a sealed token to the row and column holding it.
func tokenBinding(userID, column string) string {
	return "profiles/" + userID + "/" + column
}

// SaveProcessorCredentials encrypts and stores all credential fields in a
// single UPDATE.
func (r *ProfileRepository) SaveProcessorCredentials(ctx context.Context, userID string, creds payment.Credentials) error {
	accessToken, err := r.encryptor.Encrypt(creds.AccessToken, tokenBinding(userID, "mp_access_token"))
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refreshToken, err := r.encryptor.Encrypt(creds.RefreshToken, tokenBinding(userID, "mp_refresh_token"))
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	var expiresAt *time.Time
	if !creds.ExpiresAt.IsZero() {
		expiresAt = &creds.ExpiresAt
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE profiles
		SET mp_access_token = $2,
		    mp_refresh_token = NULLIF($3, ''),
		    mp_user_id = NULLIF($4, ''),
		    mp_token_expires_at = $5,
		    updated_at = NOW()
		WHERE id = $1
	`, userID, accessToken, refreshToken, creds.ProcessorUserID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to save processor credentials: %w", err)
	}
	return requireAffected(result, profile.ErrProfileNotFound)
}

func (r *ProfileRepository) GetProcessorCredentials(ctx context.Context, userID string) (*payment.Credentials, error) {
	var accessToken, refreshToken, processorUserID sql.NullString
	var expiresAt sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT mp_access_token, mp_refresh_token, mp_user_id, mp_token_expires_at
		FROM profiles WHERE id = $1
	`, userID).Scan(&accessToken, &refreshToken, &processorUserID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processor credentials: %w", err)
	}
	if !accessToken.Valid || accessToken.String == "" {
		return nil, payment.ErrNotConnected
	}

	creds := &payment.Credentials{
		ProcessorUserID: processorUserID.String,
		ExpiresAt:       expiresAt.Time,
	}
	if creds.AccessToken, err = r.encryptor.Decrypt(accessToken.String, tokenBinding(userID, "mp_access_token")); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if creds.RefreshToken, err = r.encryptor.Decrypt(refreshToken.String, tokenBinding(userID, "mp_refresh_token")); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return creds, nil
}

func (r *ProfileRepository) ClearProcessorCredentials(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE profiles
		SET mp_access_token = NULL, mp_refresh_token = NULL, mp_user_id = NULL,
		    mp_token_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to clear processor credentials: %w", err)
	}
	return requireAffected(result, profile.ErrProfileNotFound)
}

func (r *ProfileRepository) ListConnectedUserIDs(ctx context.Context, expiringBefore time.Time) ([]string, error) {
	query := `SELECT id FROM profiles WHERE mp_refresh_token IS NOT NULL`
	var args []any
	if !expiringBefore.IsZero() {
		query += ` AND mp_token_expires_at < $1`
		args = append(args, expiringBefore)
	}
	query += ` ORDER BY mp_token_expires_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected profiles: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan profile id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
