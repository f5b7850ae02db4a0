package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/pimentor/backend/core/doubt"
)

type doubtRepository struct {
	db *DB
}

var _ doubt.Repository = (*doubtRepository)(nil)

func NewDoubtRepository(db *DB) doubt.Repository {
	return &doubtRepository{db: db}
}

func (repo *doubtRepository) CreateDoubt(_ context.Context, d doubt.Doubt) (doubt.Doubt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	d.ID = uuid.New().String()
	repo.db.doubts[d.ID] = &d
	return d, nil
}

func (repo *doubtRepository) GetDoubt(_ context.Context, id string) (doubt.Doubt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if d, ok := repo.db.doubts[id]; ok {
		return *d, nil
	}
	return doubt.Doubt{}, doubt.ErrNotFound
}

func (repo *doubtRepository) QueryDoubts(_ context.Context, filter doubt.QueryFilter) ([]doubt.Doubt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	doubts := make([]doubt.Doubt, 0)
	for _, d := range repo.db.doubts {
		if (filter.StudentID != "" && d.StudentID != filter.StudentID) ||
			(filter.LectureID != "" && d.LectureID != filter.LectureID) ||
			(filter.CourseID != "" && d.CourseID != filter.CourseID) ||
			(filter.Status != "" && d.Status != filter.Status) {
			continue
		}
		doubts = append(doubts, *d)
	}
	sort.Slice(doubts, func(i, j int) bool { return doubts[i].CreatedAt.After(doubts[j].CreatedAt) })
	return doubts, nil
}

func (repo *doubtRepository) ResolveDoubt(_ context.Context, id, answer string) (doubt.Doubt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	d, ok := repo.db.doubts[id]
	if !ok {
		return doubt.Doubt{}, doubt.ErrNotFound
	}
	d.Answer = answer
	d.Status = doubt.StatusResolved
	return *d, nil
}
