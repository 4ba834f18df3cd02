package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/class"
)

type classRepository struct {
	db *DB
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *DB) class.Repository {
	return &classRepository{db: db}
}

// view fills the subject, teacher & roster details of cls.
func (db *DB) classView(cls class.Class) class.Class {
	subj := db.subjects[cls.SubjectID]
	teacher := db.users[cls.TeacherID]
	cls.SubjectCode = subj.Code
	cls.SubjectName = subj.Name
	cls.TeacherName = teacher.DisplayName()
	cls.StudentCount = len(db.enrollments[cls.ID])
	return cls
}

func (db *DB) deleteClass(id string) {
	for gtID, gt := range db.gradeTypes {
		if gt.ClassID == id {
			db.deleteGradeType(gtID)
		}
	}
	delete(db.enrollments, id)
	delete(db.classes, id)
}

func (repo *classRepository) CheckClassUniqueness(_ context.Context, cls class.Class) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.checkUniqueness(cls)
}

func (repo *classRepository) checkUniqueness(cls class.Class) error {
	for _, c := range repo.db.classes {
		if c.ID != cls.ID && c.SubjectID == cls.SubjectID && c.Name == cls.Name &&
			c.SchoolYear == cls.SchoolYear && c.Term == cls.Term {
			return class.ErrClassExists
		}
	}
	return nil
}

func (repo *classRepository) CreateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.checkUniqueness(cls); err != nil {
		return class.Class{}, err
	}
	cls.ID = newID()
	cls = repo.db.classView(cls)
	repo.db.classes[cls.ID] = cls
	return cls, nil
}

func matchesClass(db *DB, cls class.Class, filter *class.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" &&
		!(containsFold(cls.Name, filter.Search) || containsFold(cls.SubjectCode, filter.Search) || containsFold(cls.SubjectName, filter.Search)) {
		return false
	}
	if filter.SubjectID != "" && cls.SubjectID != filter.SubjectID {
		return false
	}
	if filter.TeacherID != "" && cls.TeacherID != filter.TeacherID {
		return false
	}
	if filter.StudentID != "" {
		if _, ok := db.enrollments[cls.ID][filter.StudentID]; !ok {
			return false
		}
	}
	if filter.SchoolYear != "" && cls.SchoolYear != filter.SchoolYear {
		return false
	}
	if filter.Term != "" && cls.Term != filter.Term {
		return false
	}
	return true
}

func (repo *classRepository) QueryClasses(_ context.Context, filter *class.QueryFilter, ordering []core.DBOrdering) ([]class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	classes := make([]class.Class, 0, len(repo.db.classes))
	for _, cls := range repo.db.classes {
		cls = repo.db.classView(cls)
		if matchesClass(repo.db, cls, filter) {
			classes = append(classes, cls)
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "school_year"}, {Field: "subject_code", Ascending: true}}
	}
	ordering = append(ordering, core.DBOrdering{Field: "name", Ascending: true}, core.DBOrdering{Field: "id", Ascending: true})
	sort.Slice(classes, func(i, j int) bool {
		a, b := classes[i], classes[j]
		return less(ordering, func(field string) int {
			switch field {
			case "id":
				return cmpString(a.ID, b.ID)
			case "name":
				return cmpString(a.Name, b.Name)
			case "subject_code":
				return cmpString(a.SubjectCode, b.SubjectCode)
			case "school_year":
				return cmpString(a.SchoolYear, b.SchoolYear)
			case "term":
				return cmpString(a.Term, b.Term)
			case "created_at":
				return cmpTime(a.CreatedAt, b.CreatedAt)
			case "updated_at":
				return cmpTime(a.UpdatedAt, b.UpdatedAt)
			}
			return 0
		})
	})
	return classes, nil
}

func (repo *classRepository) GetClass(_ context.Context, id string) (class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cls, ok := repo.db.classes[id]; ok {
		return repo.db.classView(cls), nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) UpdateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[cls.ID]; !ok {
		return class.Class{}, class.ErrNotFound
	}
	if err := repo.checkUniqueness(cls); err != nil {
		return class.Class{}, err
	}
	cls = repo.db.classView(cls)
	repo.db.classes[cls.ID] = cls
	return cls, nil
}

func (repo *classRepository) DeleteClass(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return class.ErrNotFound
	}
	repo.db.deleteClass(id)
	return nil
}

func (repo *classRepository) HasApprovedSubmissions(_ context.Context, classID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, sub := range repo.db.submissions {
		if sub.ClassID == classID && sub.IsApproved() {
			return true, nil
		}
	}
	return false, nil
}

func (repo *classRepository) Enroll(_ context.Context, classID string, studentIDs []string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[classID]; !ok {
		return 0, class.ErrNotFound
	}
	students, ok := repo.db.enrollments[classID]
	if !ok {
		students = make(map[string]time.Time)
		repo.db.enrollments[classID] = students
	}

	var cnt int
	now := time.Now().UTC()
	for _, id := range studentIDs {
		if _, ok := repo.db.users[id]; !ok {
			continue
		}
		if _, enrolled := students[id]; !enrolled {
			students[id] = now
			cnt++
		}
	}
	return cnt, nil
}

func (repo *classRepository) Unenroll(_ context.Context, classID string, studentIDs []string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	students := repo.db.enrollments[classID]
	del := idSet(studentIDs)

	var cnt int
	for id := range del {
		if _, ok := students[id]; ok {
			delete(students, id)
			cnt++
		}
	}
	for key := range repo.db.scores {
		comp := repo.db.components[key.ComponentID]
		if del[key.StudentID] && comp.ClassID == classID && !repo.db.isLocked(comp.GradeTypeID) {
			delete(repo.db.scores, key)
		}
	}
	return cnt, nil
}

func (repo *classRepository) IsEnrolled(_ context.Context, classID, studentID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.enrollments[classID][studentID]
	return ok, nil
}

func (repo *classRepository) Roster(_ context.Context, classID string) ([]class.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.roster(classID), nil
}

func (db *DB) roster(classID string) []class.Student {
	students := make([]class.Student, 0, len(db.enrollments[classID]))
	for id := range db.enrollments[classID] {
		usr := db.users[id]
		students = append(students, class.Student{ID: usr.ID, Name: usr.DisplayName(), Username: usr.Username, Email: usr.Email})
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].Name != students[j].Name {
			return students[i].Name < students[j].Name
		}
		return students[i].ID < students[j].ID
	})
	return students
}
