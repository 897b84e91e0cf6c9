package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corpusforge/phase-orchestrator/internal/store/model"
)

type Phase interface {
	// Record stores the completion of a course phase. A later completion of
	// the same phase replaces the earlier one.
	Record(ctx context.Context, completion model.PhaseCompletion) (*model.PhaseCompletion, error)
	List(ctx context.Context, courseID string) (model.PhaseCompletionList, error)
}

type PhaseStore struct {
	db *gorm.DB
}

func NewPhaseStore(db *gorm.DB) Phase {
	return &PhaseStore{db: db}
}

func (p *PhaseStore) Record(ctx context.Context, completion model.PhaseCompletion) (*model.PhaseCompletion, error) {
	if completion.CompletedAt.IsZero() {
		completion.CompletedAt = time.Now()
	}
	err := getDB(ctx, p.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_id"}, {Name: "phase"}},
		DoUpdates: clause.AssignmentColumns([]string{"job_id", "units", "cycles", "completed_at"}),
	}).Create(&completion).Error
	if err != nil {
		return nil, err
	}
	return &completion, nil
}

func (p *PhaseStore) List(ctx context.Context, courseID string) (model.PhaseCompletionList, error) {
	var list model.PhaseCompletionList
	if err := getDB(ctx, p.db).Where("course_id = ?", courseID).Order("phase").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
