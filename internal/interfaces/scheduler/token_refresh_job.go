package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TokenRefresher refreshes stored processor tokens.
type TokenRefresher interface {
	RefreshUser(ctx context.Context, userID string) error
	UsersToRefresh(ctx context.Context, window time.Duration) ([]string, error)
}

// TokenRefreshJob refreshes one user's Mercado Pago token.
type TokenRefreshJob struct {
	userID    string
	refresher TokenRefresher
}

func NewTokenRefreshJob(userID string, refresher TokenRefresher) *TokenRefreshJob {
	return &TokenRefreshJob{userID: userID, refresher: refresher}
}

func (j *TokenRefreshJob) Execute(ctx context.Context) error {
	if err := j.refresher.RefreshUser(ctx, j.userID); err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	slog.InfoContext(ctx, "processor token refreshed", "user_id", j.userID)
	return nil
}

func (j *TokenRefreshJob) UserID() string {
	return j.userID
}

func (j *TokenRefreshJob) Kind() string {
	return "token_refresh"
}

// TokenRefreshJobs returns a job provider that queues one refresh per user
// whose token expires within window.
func TokenRefreshJobs(refresher TokenRefresher, window time.Duration) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		userIDs, err := refresher.UsersToRefresh(ctx, window)
		if err != nil {
			return nil, fmt.Errorf("failed to list expiring tokens: %w", err)
		}

		jobs := make([]Job, 0, len(userIDs))
		for _, id := range userIDs {
			jobs = append(jobs, NewTokenRefreshJob(id, refresher))
		}
		return jobs, nil
	}
}
