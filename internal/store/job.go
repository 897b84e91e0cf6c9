package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corpusforge/phase-orchestrator/internal/store/model"
)

type Job interface {
	// Latest returns the most recently updated record of a course phase.
	Latest(ctx context.Context, courseID string, phase int) (*model.JobRecord, error)
	List(ctx context.Context, filter *JobQueryFilter) (model.JobRecordList, error)
	Save(ctx context.Context, record model.JobRecord) error
}

type JobStore struct {
	db *gorm.DB
}

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (j *JobStore) Latest(ctx context.Context, courseID string, phase int) (*model.JobRecord, error) {
	var record model.JobRecord
	err := getDB(ctx, j.db).
		Where("course_id = ? AND phase = ?", courseID, phase).
		Order("updated_at desc").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (j *JobStore) List(ctx context.Context, filter *JobQueryFilter) (model.JobRecordList, error) {
	var records model.JobRecordList
	tx := getDB(ctx, j.db)
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if err := tx.Order("updated_at desc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (j *JobStore) Save(ctx context.Context, record model.JobRecord) error {
	return getDB(ctx, j.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "cycle", "error", "snapshot", "updated_at"}),
	}).Create(&record).Error
}
