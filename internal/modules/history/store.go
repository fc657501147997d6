// Package history keeps one entry per billed summarization and serves the
// listing, editing and statistics built on top of them.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/briefly-app/core/internal/models"
	"github.com/briefly-app/core/internal/pkg/pagination"
)

// ErrNotFound is returned when an entry does not exist or is not visible to
// the caller.
var ErrNotFound = errors.New("history entry not found")

// Filter narrows a listing. An empty UserID matches every user.
type Filter struct {
	UserID string
	pagination.Query
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Summary *string
	Tags    *[]string
}

// Stats aggregates the entries of one user.
type Stats struct {
	TotalSavedTime   int   `json:"totalSavedTime"`
	TotalReduction   int   `json:"totalReduction"`
	TotalWordProcess int   `json:"totalWordProcess"`
	TotalSummaryWord int   `json:"totalSummaryWord"`
	TotalSummary     int64 `json:"totalSummary"`
	LastWeekSummary  int64 `json:"lastWeekSummary"`
}

// Store persists history entries. Both the SQL and the Mongo backends
// implement it.
type Store interface {
	Record(ctx context.Context, entry *models.HistoryModel) (string, error)
	List(ctx context.Context, f Filter) ([]models.HistoryModel, int64, error)
	Get(ctx context.Context, id string) (*models.HistoryModel, error)
	Update(ctx context.Context, id string, p Patch) (*models.HistoryModel, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, userID string, since time.Time) (*Stats, error)
	// Each calls fn for every entry created in [from, to), oldest first.
	Each(ctx context.Context, from, to time.Time, fn func(*models.HistoryModel) error) error
}
