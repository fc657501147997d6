package history

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/briefly-app/core/internal/models"
	"github.com/briefly-app/core/internal/pkg/pagination"
	"gorm.io/gorm"
)

const eachBatchSize = 200

// GormStore keeps history in the SQL database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) Record(ctx context.Context, entry *models.HistoryModel) (string, error) {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return "", err
	}
	return entry.ID, nil
}

func (s *GormStore) List(ctx context.Context, f Filter) ([]models.HistoryModel, int64, error) {
	tx := s.db.WithContext(ctx).Model(&models.HistoryModel{}).Order("created_at DESC")
	if f.UserID != "" {
		tx = tx.Where("user_id = ?", f.UserID)
	}
	if f.Search != "" {
		like := pagination.LikePattern(f.Search)
		tx = tx.Where("(summary LIKE ? ESCAPE '!' OR tags LIKE ? ESCAPE '!')", like, like)
	}

	var entries []models.HistoryModel
	total, err := pagination.Paginate(tx, f.Query, &entries)
	return entries, total, err
}

func (s *GormStore) Get(ctx context.Context, id string) (*models.HistoryModel, error) {
	var entry models.HistoryModel
	err := s.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *GormStore) Update(ctx context.Context, id string, p Patch) (*models.HistoryModel, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if p.Summary != nil {
		updates["summary"] = *p.Summary
	}
	if p.Tags != nil {
		updates["tags"] = models.NormalizeTags(*p.Tags)
	}
	if len(updates) == 0 {
		return entry, nil
	}
	if err := s.db.WithContext(ctx).Model(entry).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.HistoryModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Stats(ctx context.Context, userID string, since time.Time) (*Stats, error) {
	var row struct {
		Count        int64
		SavedTime    int64
		AvgReduction float64
		TotalWords   int64
		SummaryWords int64
	}
	err := s.db.WithContext(ctx).Model(&models.HistoryModel{}).
		Select("COUNT(*) AS count, COALESCE(SUM(saved_time), 0) AS saved_time, COALESCE(AVG(reduction), 0) AS avg_reduction, COALESCE(SUM(total_words), 0) AS total_words, COALESCE(SUM(summary_words), 0) AS summary_words").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	var lastWeek int64
	if err := s.db.WithContext(ctx).Model(&models.HistoryModel{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&lastWeek).Error; err != nil {
		return nil, err
	}

	return &Stats{
		TotalSavedTime:   int(row.SavedTime),
		TotalReduction:   int(math.Round(row.AvgReduction)),
		TotalWordProcess: int(row.TotalWords),
		TotalSummaryWord: int(row.SummaryWords),
		TotalSummary:     row.Count,
		LastWeekSummary:  lastWeek,
	}, nil
}

func (s *GormStore) Each(ctx context.Context, from, to time.Time, fn func(*models.HistoryModel) error) error {
	for offset := 0; ; offset += eachBatchSize {
		var batch []models.HistoryModel
		err := s.db.WithContext(ctx).
			Where("created_at >= ? AND created_at < ?", from, to).
			Order("created_at ASC, id ASC").
			Offset(offset).
			Limit(eachBatchSize).
			Find(&batch).Error
		if err != nil {
			return err
		}
		for i := range batch {
			if err := fn(&batch[i]); err != nil {
				return err
			}
		}
		if len(batch) < eachBatchSize {
			return nil
		}
	}
}
