package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corpusforge/phase-orchestrator/internal/store/model"
)

type Manifest interface {
	Get(ctx context.Context, courseID string, phase int) (*model.CollisionManifest, error)
	Save(ctx context.Context, m model.CollisionManifest) error
	Delete(ctx context.Context, courseID string, phase int) error
}

type ManifestStore struct {
	db *gorm.DB
}

func NewManifestStore(db *gorm.DB) Manifest {
	return &ManifestStore{db: db}
}

func (m *ManifestStore) Get(ctx context.Context, courseID string, phase int) (*model.CollisionManifest, error) {
	var manifest model.CollisionManifest
	if err := getDB(ctx, m.db).Where("course_id = ? AND phase = ?", courseID, phase).First(&manifest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &manifest, nil
}

func (m *ManifestStore) Save(ctx context.Context, manifest model.CollisionManifest) error {
	return getDB(ctx, m.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_id"}, {Name: "phase"}},
		DoUpdates: clause.AssignmentColumns([]string{"cycle", "status", "document", "updated_at"}),
	}).Create(&manifest).Error
}

func (m *ManifestStore) Delete(ctx context.Context, courseID string, phase int) error {
	return getDB(ctx, m.db).Where("course_id = ? AND phase = ?", courseID, phase).Delete(&model.CollisionManifest{}).Error
}
