package scheduler

import "context"

// Job is one unit of background work for one user.
type Job interface {
	Execute(ctx context.Context) error

	// UserID names the user the job works for, for logs and spans.
	UserID() string

	// Kind is a short stable label used as a metric attribute.
	Kind() string
}
