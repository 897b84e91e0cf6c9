package store

import (
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type CorpusQueryFilter BaseQuerier

func NewCorpusQueryFilter() *CorpusQueryFilter {
	return &CorpusQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *CorpusQueryFilter) ByCourse(courseID string, phase int) *CorpusQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("course_id = ? AND phase = ?", courseID, phase)
	})
	return qf
}

func (qf *CorpusQueryFilter) ByUnitRange(start, end int) *CorpusQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("unit_index BETWEEN ? AND ?", start, end)
	})
	return qf
}

func (qf *CorpusQueryFilter) OnlyAuthoritative() *CorpusQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("is_new = ?", true)
	})
	return qf
}

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *JobQueryFilter) ByCourseID(courseID string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("course_id = ?", courseID)
	})
	return qf
}

func (qf *JobQueryFilter) ByPhase(phase int) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("phase = ?", phase)
	})
	return qf
}

func (qf *JobQueryFilter) ByState(states ...string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("state IN ?", states)
	})
	return qf
}
