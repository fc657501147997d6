package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/briefly-app/core/internal/models"
	"github.com/briefly-app/core/internal/pkg/pagination"
	"github.com/briefly-app/core/internal/pkg/response"
)

const (
	statsWindow = 7 * 24 * time.Hour
	maxTags     = 20
)

// ErrInvalidPatch is returned for empty summaries or too many tags.
var ErrInvalidPatch = errors.New("invalid history update")

type Service struct {
	store      Store
	privileged map[string]struct{}
	now        func() time.Time
}

// NewService wraps store. privilegedRoles may edit and delete any entry.
func NewService(store Store, privilegedRoles []string) *Service {
	set := make(map[string]struct{}, len(privilegedRoles))
	for _, r := range privilegedRoles {
		set[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	return &Service{store: store, privileged: set, now: time.Now}
}

// Store returns the backing store.
func (s *Service) Store() Store { return s.store }

// Record stores a new entry and returns its id.
func (s *Service) Record(ctx context.Context, entry *models.HistoryModel) (string, error) {
	return s.store.Record(ctx, entry)
}

func (s *Service) isPrivileged(user *models.UserModel) bool {
	_, ok := s.privileged[strings.ToLower(user.Role)]
	return ok
}

// canViewAll: every role above a plain user may browse all entries.
func canViewAll(user *models.UserModel) bool {
	return !strings.EqualFold(user.Role, models.RoleUser)
}

// List returns a page of entries visible to user.
func (s *Service) List(ctx context.Context, user *models.UserModel, q pagination.Query) ([]models.HistoryModel, response.Pagination, error) {
	q = pagination.Normalize(q)
	f := Filter{Query: q}
	if !canViewAll(user) {
		f.UserID = user.ID
	}
	entries, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	return entries, q.Meta(total), nil
}

// Get returns one entry visible to user.
func (s *Service) Get(ctx context.Context, user *models.UserModel, id string) (*models.HistoryModel, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.UserID != user.ID && !canViewAll(user) {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Update edits the summary and tags of an entry owned by user, or of any
// entry for privileged roles.
func (s *Service) Update(ctx context.Context, user *models.UserModel, id string, p Patch) (*models.HistoryModel, error) {
	if p.Summary != nil {
		trimmed := strings.TrimSpace(*p.Summary)
		if trimmed == "" {
			return nil, ErrInvalidPatch
		}
		p.Summary = &trimmed
	}
	if p.Tags != nil && len(*p.Tags) > maxTags {
		return nil, ErrInvalidPatch
	}
	if err := s.authorize(ctx, user, id); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, id, p)
}

// Delete removes an entry under the same rules as Update.
func (s *Service) Delete(ctx context.Context, user *models.UserModel, id string) error {
	if err := s.authorize(ctx, user, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

func (s *Service) authorize(ctx context.Context, user *models.UserModel, id string) error {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry.UserID != user.ID && !s.isPrivileged(user) {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates the entries of userID.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	return s.store.Stats(ctx, userID, s.now().Add(-statsWindow))
}
