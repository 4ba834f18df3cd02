package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/submission"
)

type submissionRepository struct {
	db *DB
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *DB) submission.Repository {
	return &submissionRepository{db: db}
}

func (db *DB) submissionView(sub submission.Submission) submission.Submission {
	cls := db.classView(db.classes[sub.ClassID])
	teacher := db.users[sub.TeacherID]
	sub.ClassName = cls.Name
	sub.SubjectCode = cls.SubjectCode
	sub.GradeTypeName = db.gradeTypes[sub.GradeTypeID].Name
	sub.TeacherName = teacher.DisplayName()
	sub.ReviewerName = ""
	if reviewer, ok := db.users[sub.ReviewedBy]; ok {
		sub.ReviewerName = reviewer.DisplayName()
	}
	sub.Grades = nil
	return sub
}

func (db *DB) openSubmission(classID, gradeTypeID string) (submission.Submission, bool) {
	for _, sub := range db.submissions {
		if sub.ClassID == classID && sub.GradeTypeID == gradeTypeID && (sub.IsPending() || sub.IsApproved()) {
			return sub, true
		}
	}
	return submission.Submission{}, false
}

func (repo *submissionRepository) OpenSubmission(_ context.Context, classID, gradeTypeID string) (submission.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sub, ok := repo.db.openSubmission(classID, gradeTypeID); ok {
		return repo.db.submissionView(sub), nil
	}
	return submission.Submission{}, submission.ErrNotFound
}

func (repo *submissionRepository) CreateSubmission(_ context.Context, sub submission.Submission, grades []submission.Grade) (submission.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if open, ok := repo.db.openSubmission(sub.ClassID, sub.GradeTypeID); ok {
		if open.IsApproved() {
			return submission.Submission{}, submission.ErrAlreadyApproved
		}
		return submission.Submission{}, submission.ErrAlreadyPending
	}

	sub.ID = newID()
	stored := make([]submission.Grade, 0, len(grades))
	for _, g := range grades {
		g.SubmissionID = sub.ID
		stored = append(stored, g)
	}
	sort.Slice(stored, func(i, j int) bool {
		if stored[i].StudentName != stored[j].StudentName {
			return stored[i].StudentName < stored[j].StudentName
		}
		return stored[i].StudentID < stored[j].StudentID
	})
	sub.Grades = nil
	repo.db.submissions[sub.ID] = sub
	repo.db.grades[sub.ID] = stored

	sub = repo.db.submissionView(sub)
	sub.Grades = append([]submission.Grade{}, stored...)
	return sub, nil
}

func (repo *submissionRepository) Review(_ context.Context, id, status, reviewerID, remarks string, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sub, ok := repo.db.submissions[id]
	if !ok {
		return submission.ErrNotFound
	}
	if !sub.IsPending() {
		return core.ErrInvalidTransition
	}
	sub.Status = status
	sub.ReviewedBy = reviewerID
	sub.Remarks = remarks
	sub.ReviewedAt = at.UTC()
	repo.db.submissions[id] = sub
	return nil
}

func (repo *submissionRepository) QuerySubmissions(_ context.Context, filter *submission.QueryFilter) ([]submission.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subs := make([]submission.Submission, 0)
	for _, sub := range repo.db.submissions {
		if filter != nil {
			if (filter.Status != "" && sub.Status != filter.Status) ||
				(filter.ClassID != "" && sub.ClassID != filter.ClassID) ||
				(filter.GradeTypeID != "" && sub.GradeTypeID != filter.GradeTypeID) ||
				(filter.TeacherID != "" && sub.TeacherID != filter.TeacherID) {
				continue
			}
		}
		subs = append(subs, repo.db.submissionView(sub))
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
		}
		return subs[i].ID > subs[j].ID
	})
	return subs, nil
}

func (repo *submissionRepository) GetSubmission(_ context.Context, id string) (submission.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	sub, ok := repo.db.submissions[id]
	if !ok {
		return submission.Submission{}, submission.ErrNotFound
	}
	sub = repo.db.submissionView(sub)
	sub.Grades = append([]submission.Grade{}, repo.db.grades[id]...)
	return sub, nil
}

func (repo *submissionRepository) ApprovedGrades(_ context.Context, studentID string) (map[string]submission.Grade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	grades := make(map[string]submission.Grade)
	for id, sub := range repo.db.submissions {
		if !sub.IsApproved() {
			continue
		}
		for _, g := range repo.db.grades[id] {
			if g.StudentID == studentID {
				grades[sub.GradeTypeID] = g
			}
		}
	}
	return grades, nil
}
