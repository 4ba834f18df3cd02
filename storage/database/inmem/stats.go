package inmemdb

import (
	"context"

	"github.com/trezcool/alama/core/dashboard"
	"github.com/trezcool/alama/core/submission"
)

type statsRepository struct {
	db *DB
}

var _ dashboard.Repository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(db *DB) dashboard.Repository {
	return &statsRepository{db: db}
}

func (repo *statsRepository) Stats(_ context.Context) (dashboard.Stats, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	stats := dashboard.Stats{
		Subjects: len(repo.db.subjects),
		Classes:  len(repo.db.classes),
	}
	for _, usr := range repo.db.users {
		if !usr.IsActive {
			continue
		}
		if usr.IsAdmin() {
			stats.Admins++
		}
		if usr.IsTeacher() {
			stats.Teachers++
		}
		if usr.IsStudent() {
			stats.Students++
		}
	}
	for _, sub := range repo.db.submissions {
		switch sub.Status {
		case submission.StatusPending:
			stats.Pending++
		case submission.StatusApproved:
			stats.Approved++
		case submission.StatusDeclined:
			stats.Declined++
		}
	}
	return stats, nil
}
