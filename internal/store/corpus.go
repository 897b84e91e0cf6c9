package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corpusforge/phase-orchestrator/internal/store/model"
)

const upsertBatchSize = 200

type Corpus interface {
	List(ctx context.Context, filter *CorpusQueryFilter) (model.CorpusUnitList, error)
	Upsert(ctx context.Context, units model.CorpusUnitList) error
	// Replace swaps the whole stored corpus of a course phase.
	Replace(ctx context.Context, courseID string, phase int, units model.CorpusUnitList) error
	DeleteUnits(ctx context.Context, courseID string, phase int, unitIndices []int) error
}

type CorpusStore struct {
	db *gorm.DB
}

func NewCorpusStore(db *gorm.DB) Corpus {
	return &CorpusStore{db: db}
}

func (c *CorpusStore) List(ctx context.Context, filter *CorpusQueryFilter) (model.CorpusUnitList, error) {
	var units model.CorpusUnitList
	tx := getDB(ctx, c.db)
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if err := tx.Order("unit_index, segment, seq, unit_id").Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

func (c *CorpusStore) Upsert(ctx context.Context, units model.CorpusUnitList) error {
	if len(units) == 0 {
		return nil
	}
	return getDB(ctx, c.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_id"}, {Name: "phase"}, {Name: "unit_id"}},
		UpdateAll: true,
	}).CreateInBatches(&units, upsertBatchSize).Error
}

func (c *CorpusStore) Replace(ctx context.Context, courseID string, phase int, units model.CorpusUnitList) error {
	write := func(tx *gorm.DB) error {
		if err := tx.Where("course_id = ? AND phase = ?", courseID, phase).Delete(&model.CorpusUnit{}).Error; err != nil {
			return err
		}
		if len(units) == 0 {
			return nil
		}
		return tx.CreateInBatches(&units, upsertBatchSize).Error
	}

	return withTransaction(ctx, c.db, func(ctx context.Context) error {
		return write(getDB(ctx, c.db))
	})
}

func (c *CorpusStore) DeleteUnits(ctx context.Context, courseID string, phase int, unitIndices []int) error {
	if len(unitIndices) == 0 {
		return nil
	}
	return getDB(ctx, c.db).
		Where("course_id = ? AND phase = ? AND unit_index IN ?", courseID, phase, unitIndices).
		Delete(&model.CorpusUnit{}).Error
}
