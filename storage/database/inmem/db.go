// Package inmemdb implements the domain repositories in memory, for tests & the -inmem dev server.
package inmemdb

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/class"
	"github.com/trezcool/alama/core/grading"
	"github.com/trezcool/alama/core/subject"
	"github.com/trezcool/alama/core/submission"
	"github.com/trezcool/alama/core/user"
)

// DB holds every table behind a single lock.
type DB struct {
	mutex sync.RWMutex

	users       map[string]user.User
	subjects    map[string]subject.Subject
	classes     map[string]class.Class
	enrollments map[string]map[string]time.Time // {classID: {studentID: enrolledAt}}
	gradeTypes  map[string]grading.GradeType
	criteria    map[string]grading.Criterion
	components  map[string]grading.Component
	scores      map[grading.ScoreKey]grading.Score
	submissions map[string]submission.Submission
	grades      map[string][]submission.Grade // {submissionID: grades}
}

func NewDB() *DB {
	return &DB{
		users:       make(map[string]user.User),
		subjects:    make(map[string]subject.Subject),
		classes:     make(map[string]class.Class),
		enrollments: make(map[string]map[string]time.Time),
		gradeTypes:  make(map[string]grading.GradeType),
		criteria:    make(map[string]grading.Criterion),
		components:  make(map[string]grading.Component),
		scores:      make(map[grading.ScoreKey]grading.Score),
		submissions: make(map[string]submission.Submission),
		grades:      make(map[string][]submission.Grade),
	}
}

func newID() string { return uuid.New().String() }

// containsFold reports whether substr is within s, ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// less applies the orderings in turn; cmp compares the two items being sorted on a field.
func less(ordering []core.DBOrdering, cmp func(field string) int) bool {
	for _, ord := range ordering {
		if c := cmp(ord.Field); c != 0 {
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
	}
	return false
}

func cmpString(a, b string) int { return strings.Compare(a, b) }

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	}
	return -1
}
