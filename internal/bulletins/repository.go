package bulletins

import (
	"context"

	"github.com/acreage/leadline/internal/domain"
)

// FeedStore persists per-feed poll cursors.
type FeedStore interface {
	Get(ctx context.Context, feedURL string) (*domain.FeedState, error)
	SetCursor(ctx context.Context, feedURL, marketCode, lastGUID string) error
	RecordError(ctx context.Context, feedURL, marketCode string) (int, error)
}

// TaskStore records bulletin notices as background tasks.
type TaskStore interface {
	Create(ctx context.Context, taskType string, params any) (*domain.BackgroundTask, error)
}

// Notifier pushes one notice to humans. The wiring adapts the market's
// Slack channel; nil keeps notices as task records only.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Stores bundles what the watcher persists through.
type Stores struct {
	Feeds FeedStore
	Tasks TaskStore
}
