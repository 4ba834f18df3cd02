package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/subject"
)

type subjectRepository struct {
	db *DB
}

var _ subject.Repository = (*subjectRepository)(nil) // interface compliance check

func NewSubjectRepository(db *DB) subject.Repository {
	return &subjectRepository{db: db}
}

func (repo *subjectRepository) CheckCodeUniqueness(_ context.Context, code string, excluded []subject.Subject) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.checkCode(code, excluded)
}

func (repo *subjectRepository) checkCode(code string, excluded []subject.Subject) error {
	excl := make(map[string]bool, len(excluded))
	for _, s := range excluded {
		excl[s.ID] = true
	}
	for _, subj := range repo.db.subjects {
		if subj.Code == code && !excl[subj.ID] {
			return subject.ErrCodeExists
		}
	}
	return nil
}

func (repo *subjectRepository) CreateSubject(_ context.Context, subj subject.Subject) (subject.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.checkCode(subj.Code, nil); err != nil {
		return subject.Subject{}, err
	}
	subj.ID = newID()
	repo.db.subjects[subj.ID] = subj
	return subj, nil
}

func (repo *subjectRepository) QuerySubjects(_ context.Context, filter *subject.QueryFilter, ordering []core.DBOrdering) ([]subject.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subjects := make([]subject.Subject, 0, len(repo.db.subjects))
	for _, subj := range repo.db.subjects {
		if filter != nil && filter.Search != "" && !(containsFold(subj.Code, filter.Search) || containsFold(subj.Name, filter.Search)) {
			continue
		}
		subjects = append(subjects, subj)
	}

	ordering = append(ordering, core.DBOrdering{Field: "code", Ascending: true})
	sort.Slice(subjects, func(i, j int) bool {
		a, b := subjects[i], subjects[j]
		return less(ordering, func(field string) int {
			switch field {
			case "code":
				return cmpString(a.Code, b.Code)
			case "name":
				return cmpString(a.Name, b.Name)
			case "created_at":
				return cmpTime(a.CreatedAt, b.CreatedAt)
			case "updated_at":
				return cmpTime(a.UpdatedAt, b.UpdatedAt)
			}
			return 0
		})
	})
	return subjects, nil
}

func (repo *subjectRepository) GetSubject(_ context.Context, id string) (subject.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if subj, ok := repo.db.subjects[id]; ok {
		return subj, nil
	}
	return subject.Subject{}, subject.ErrNotFound
}

func (repo *subjectRepository) UpdateSubject(_ context.Context, subj subject.Subject) (subject.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.subjects[subj.ID]; !ok {
		return subject.Subject{}, subject.ErrNotFound
	}
	if err := repo.checkCode(subj.Code, []subject.Subject{subj}); err != nil {
		return subject.Subject{}, err
	}
	repo.db.subjects[subj.ID] = subj
	return subj, nil
}

func (repo *subjectRepository) DeleteSubjectsByID(_ context.Context, ids []string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	del := idSet(ids)
	for _, cls := range repo.db.classes {
		if del[cls.SubjectID] {
			return 0, subject.ErrHasClasses
		}
	}

	var cnt int
	for id := range del {
		if _, ok := repo.db.subjects[id]; ok {
			delete(repo.db.subjects, id)
			cnt++
		}
	}
	return cnt, nil
}
