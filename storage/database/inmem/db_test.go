package inmemdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/class"
	"github.com/trezcool/alama/core/grading"
	"github.com/trezcool/alama/core/subject"
	"github.com/trezcool/alama/core/submission"
	"github.com/trezcool/alama/core/user"
)

type seed struct {
	db       *DB
	teacher  user.User
	student  user.User
	cls      class.Class
	gt       grading.GradeType
	comp     grading.Component
	subID    string
	usrRepo  user.Repository
	clsRepo  class.Repository
	gradRepo grading.Repository
	subRepo  submission.Repository
}

func newSeed(t *testing.T) seed {
	ctx := context.Background()
	s := seed{db: NewDB()}
	s.usrRepo = NewUserRepository(s.db)
	s.clsRepo = NewClassRepository(s.db)
	s.gradRepo = NewGradingRepository(s.db)
	s.subRepo = NewSubmissionRepository(s.db)

	var err error
	s.teacher, err = s.usrRepo.CreateUser(ctx, user.User{Name: "Teach", Username: "teach", Roles: []string{user.RoleTeacher}, IsActive: true})
	require.NoError(t, err)
	s.student, err = s.usrRepo.CreateUser(ctx, user.User{Name: "Stu", Username: "stu", Roles: []string{user.RoleStudent}, IsActive: true})
	require.NoError(t, err)
	subj, err := NewSubjectRepository(s.db).CreateSubject(ctx, subject.Subject{Code: "MATH101", Name: "Algebra"})
	require.NoError(t, err)
	s.cls, err = s.clsRepo.CreateClass(ctx, class.Class{Name: "A", SubjectID: subj.ID, TeacherID: s.teacher.ID, SchoolYear: "2024-2025", Term: class.TermFirst})
	require.NoError(t, err)
	_, err = s.clsRepo.Enroll(ctx, s.cls.ID, []string{s.student.ID})
	require.NoError(t, err)

	s.gt, err = s.gradRepo.CreateGradeType(ctx, grading.GradeType{ClassID: s.cls.ID, Name: "Midterm", Weight: 100})
	require.NoError(t, err)
	c, err := s.gradRepo.CreateCriterion(ctx, grading.Criterion{GradeTypeID: s.gt.ID, Name: "Exams", Weight: 100})
	require.NoError(t, err)
	s.comp, err = s.gradRepo.CreateComponent(ctx, grading.Component{CriterionID: c.ID, Name: "Exam 1", MaxScore: 10})
	require.NoError(t, err)
	require.NoError(t, s.gradRepo.SaveScores(ctx, []grading.Score{{ComponentID: s.comp.ID, StudentID: s.student.ID, Score: 9}}, nil))

	sub, err := s.subRepo.CreateSubmission(ctx, submission.Submission{
		ClassID:     s.cls.ID,
		GradeTypeID: s.gt.ID,
		TeacherID:   s.teacher.ID,
		Status:      submission.StatusPending,
		SubmittedAt: time.Now().UTC(),
	}, []submission.Grade{{StudentID: s.student.ID, StudentName: "Stu", Percentage: 90, GradePoint: 1.5, Remarks: grading.RemarksPassed}})
	require.NoError(t, err)
	s.subID = sub.ID
	return s
}

func TestDB_deleteClassCascades(t *testing.T) {
	s := newSeed(t)
	require.NoError(t, s.clsRepo.DeleteClass(context.Background(), s.cls.ID))

	assert.Empty(t, s.db.classes)
	assert.Empty(t, s.db.enrollments)
	assert.Empty(t, s.db.gradeTypes)
	assert.Empty(t, s.db.criteria)
	assert.Empty(t, s.db.components)
	assert.Empty(t, s.db.scores)
	assert.Empty(t, s.db.submissions)
	assert.Empty(t, s.db.grades)
	assert.Len(t, s.db.users, 2)
}

func TestDB_deleteStudentCascades(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()

	_, err := s.usrRepo.DeleteUsersByID(ctx, []string{s.teacher.ID})
	assert.Equal(t, user.ErrInUse, err)

	cnt, err := s.usrRepo.DeleteUsersByID(ctx, []string{s.student.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)
	assert.Empty(t, s.db.enrollments[s.cls.ID])
	assert.Empty(t, s.db.scores)
	assert.Empty(t, s.db.grades[s.subID])
}

func TestSubmissionRepository_Review(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()

	_, err := s.subRepo.CreateSubmission(ctx, submission.Submission{ClassID: s.cls.ID, GradeTypeID: s.gt.ID}, nil)
	assert.Equal(t, submission.ErrAlreadyPending, err)

	locked, err := s.gradRepo.IsLocked(ctx, s.gt.ID)
	require.NoError(t, err)
	assert.True(t, locked)

	now := time.Now()
	require.NoError(t, s.subRepo.Review(ctx, s.subID, submission.StatusApproved, s.teacher.ID, "", now))
	assert.Equal(t, core.ErrInvalidTransition, s.subRepo.Review(ctx, s.subID, submission.StatusDeclined, s.teacher.ID, "no", now))
	assert.Equal(t, submission.ErrNotFound, s.subRepo.Review(ctx, "unknown", submission.StatusApproved, s.teacher.ID, "", now))

	_, err = s.subRepo.CreateSubmission(ctx, submission.Submission{ClassID: s.cls.ID, GradeTypeID: s.gt.ID}, nil)
	assert.Equal(t, submission.ErrAlreadyApproved, err)

	grades, err := s.subRepo.ApprovedGrades(ctx, s.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 90.0, grades[s.gt.ID].Percentage)

	approved, err := s.clsRepo.HasApprovedSubmissions(ctx, s.cls.ID)
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestLess(t *testing.T) {
	ordering := []core.DBOrdering{{Field: "a", Ascending: true}, {Field: "b", Ascending: false}}
	cmp := func(a1, b1, a2, b2 int) func(string) int {
		return func(field string) int {
			if field == "a" {
				return a1 - a2
			}
			return b1 - b2
		}
	}
	assert.True(t, less(ordering, cmp(1, 0, 2, 0)))
	assert.False(t, less(ordering, cmp(2, 0, 1, 0)))
	assert.True(t, less(ordering, cmp(1, 5, 1, 3)))
	assert.False(t, less(ordering, cmp(1, 3, 1, 3)))
}

func TestGradingRepository_weightSums(t *testing.T) {
	s := newSeed(t)
	ctx := context.Background()

	_, err := s.gradRepo.CreateGradeType(ctx, grading.GradeType{ClassID: s.cls.ID, Name: "Final", Weight: 10})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "weight", verr.Fields[0].Field)

	s.gt.Weight = 100
	_, err = s.gradRepo.UpdateGradeType(ctx, s.gt)
	assert.NoError(t, err, "the updated grade type is not its own sibling")

	_, err = s.gradRepo.CreateCriterion(ctx, grading.Criterion{GradeTypeID: s.gt.ID, Name: "Quizzes", Weight: 1})
	require.ErrorAs(t, err, &verr)

	t.Run("concurrent writes", func(t *testing.T) {
		cls, err := s.clsRepo.CreateClass(ctx, class.Class{Name: "B", SubjectID: s.cls.SubjectID, TeacherID: s.teacher.ID, SchoolYear: "2024-2025", Term: class.TermFirst})
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.gradRepo.CreateGradeType(ctx, grading.GradeType{ClassID: cls.ID, Name: "Term", Weight: 40}); err == nil {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 2, created)
		assert.Equal(t, 80.0, s.db.gradeTypesWeight(cls.ID, ""))
	})
}
