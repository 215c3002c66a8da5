package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"splitpay/internal/domain/notification"
)

const deviceTokenColumns = `id, user_id, token, platform, is_active, created_at, last_used`

const notificationColumns = `id, user_id, title, message, category, data, opened_at, created_at`

// NotificationRepository stores device tokens and the per-user inbox.
type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// pushData maps the JSONB data column. NULL and '{}' both scan to an
// empty map so callers can index it without a nil check.
type pushData map[string]string

func (d pushData) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(d))
	return string(b), err
}

func (d *pushData) Scan(src any) error {
	*d = pushData{}
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("pushData: unsupported source %T", src)
	}
	return json.Unmarshal(raw, (*map[string]string)(d))
}

func scanDeviceToken(row scanner) (*notification.DeviceToken, error) {
	var dt notification.DeviceToken
	err := row.Scan(&dt.ID, &dt.UserID, &dt.Token, &dt.Platform, &dt.IsActive, &dt.CreatedAt, &dt.LastUsed)
	if err != nil {
		return nil, err
	}
	return &dt, nil
}

func scanNotification(row scanner) (*notification.Notification, error) {
	var n notification.Notification
	var data pushData
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Category, &data, &n.OpenedAt, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.Data = data
	return &n, nil
}

// UpsertDeviceToken registers a token, or moves it to params.UserID and
// reactivates it when it is already known.
func (r *NotificationRepository) UpsertDeviceToken(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error) {
	dt, err := scanDeviceToken(r.db.QueryRowContext(ctx, `
		INSERT INTO device_tokens (user_id, token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE
			SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform,
			    is_active = TRUE, last_used = NOW()
		RETURNING `+deviceTokenColumns,
		params.UserID, params.Token, params.Platform,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert device token: %w", err)
	}
	return dt, nil
}

func (r *NotificationRepository) GetActiveTokensByUserID(ctx context.Context, userID string) ([]*notification.DeviceToken, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceTokenColumns+`
		FROM device_tokens
		WHERE user_id = $1 AND is_active
		ORDER BY last_used DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*notification.DeviceToken
	for rows.Next() {
		dt, err := scanDeviceToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, dt)
	}
	return tokens, rows.Err()
}

// DeactivateToken keeps the row so a later re-registration can revive it.
func (r *NotificationRepository) DeactivateToken(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE device_tokens SET is_active = FALSE WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to deactivate device token: %w", err)
	}
	return nil
}

func (r *NotificationRepository) DeleteDeviceToken(ctx context.Context, userID, token string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE user_id = $1 AND token = $2`, userID, token)
	if err != nil {
		return fmt.Errorf("failed to delete device token: %w", err)
	}
	return requireAffected(result, notification.ErrDeviceTokenNotFound)
}

func (r *NotificationRepository) GetUserIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM profiles WHERE email = $1`, strings.ToLower(email)).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", notification.ErrRecipientNotFound
	case err != nil:
		return "", fmt.Errorf("failed to look up recipient: %w", err)
	}
	return id, nil
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, params notification.CreateNotificationParams) (*notification.Notification, error) {
	n, err := scanNotification(r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, title, message, category, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+notificationColumns,
		params.UserID, params.Title, params.Message, params.Category, pushData(params.Data),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}
	return n, nil
}

// ListByUserID returns one page of the inbox, newest first. The counts
// cover the whole inbox so the badge stays right on every page.
func (r *NotificationRepository) ListByUserID(ctx context.Context, userID string, page notification.Page) (*notification.Inbox, error) {
	inbox := &notification.Inbox{Page: page, Notifications: []*notification.Notification{}}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE opened_at IS NULL)
		FROM notifications WHERE user_id = $1`,
		userID,
	).Scan(&inbox.Total, &inbox.Unread)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}
	if inbox.Total <= page.Offset() {
		return inbox, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		userID, page.Size, page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		inbox.Notifications = append(inbox.Notifications, n)
	}
	return inbox, rows.Err()
}

// MarkOpened keeps the first opened_at when called again.
func (r *NotificationRepository) MarkOpened(ctx context.Context, notificationID, userID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET opened_at = COALESCE(opened_at, NOW())
		WHERE id = $1 AND user_id = $2`,
		notificationID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification opened: %w", err)
	}
	return requireAffected(result, notification.ErrNotificationNotFound)
}

// MarkAllOpened returns how many notifications were unread.
func (r *NotificationRepository) MarkAllOpened(ctx context.Context, userID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET opened_at = NOW()
		WHERE user_id = $1 AND opened_at IS NULL`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications opened: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}
