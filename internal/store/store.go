package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/corpusforge/phase-orchestrator/internal/store/model"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	// WithTransaction runs fn with a transaction in its context, committing
	// when fn returns nil and rolling back otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Corpus() Corpus
	Manifest() Manifest
	Job() Job
	Phase() Phase
	InitialMigration(ctx context.Context) error
	Statistics(ctx context.Context) (model.CorpusStats, error)
	Close() error
}

type DataStore struct {
	db       *gorm.DB
	corpus   Corpus
	manifest Manifest
	job      Job
	phase    Phase
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:       db,
		corpus:   NewCorpusStore(db),
		manifest: NewManifestStore(db),
		job:      NewJobStore(db),
		phase:    NewPhaseStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTransaction(ctx, s.db, fn)
}

func (s *DataStore) Corpus() Corpus {
	return s.corpus
}

func (s *DataStore) Manifest() Manifest {
	return s.manifest
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Phase() Phase {
	return s.phase
}

func (s *DataStore) InitialMigration(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&model.CorpusUnit{},
		&model.CollisionManifest{},
		&model.JobRecord{},
		&model.PhaseCompletion{},
	)
}

func (s *DataStore) Statistics(ctx context.Context) (model.CorpusStats, error) {
	stats := model.CorpusStats{
		UnitsByPhase: map[int]int{},
		JobsByState:  map[string]int{},
	}
	db := s.db.WithContext(ctx)

	var units []struct {
		Phase int
		Total int
	}
	if err := db.Model(&model.CorpusUnit{}).Select("phase, count(*) as total").Group("phase").Scan(&units).Error; err != nil {
		return stats, err
	}
	for _, u := range units {
		stats.UnitsByPhase[u.Phase] = u.Total
	}

	var jobs []struct {
		State string
		Total int
	}
	if err := db.Model(&model.JobRecord{}).Select("state, count(*) as total").Group("state").Scan(&jobs).Error; err != nil {
		return stats, err
	}
	for _, j := range jobs {
		stats.JobsByState[j.State] = j.Total
	}

	var open int64
	if err := db.Model(&model.CollisionManifest{}).Count(&open).Error; err != nil {
		return stats, err
	}
	stats.OpenManifests = int(open)

	var completions int64
	if err := db.Model(&model.PhaseCompletion{}).Count(&completions).Error; err != nil {
		return stats, err
	}
	stats.Completions = int(completions)

	return stats, nil
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func getDB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx := FromContext(ctx); tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}
