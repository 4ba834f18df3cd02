package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func copyUser(usr user.User) user.User {
	usr.Roles = append([]string{}, usr.Roles...)
	usr.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	return usr
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers []user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.checkUniqueness(username, email, excludedUsers)
}

func (repo *userRepository) checkUniqueness(username, email string, excludedUsers []user.User) error {
	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}

	var unameTaken, emailTaken bool
	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		unameTaken = unameTaken || (username != "" && usr.Username == username)
		emailTaken = emailTaken || (email != "" && usr.Email == email)
	}
	switch {
	case unameTaken && emailTaken:
		return user.ErrUserExists
	case unameTaken:
		return user.ErrUsernameExists
	case emailTaken:
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.checkUniqueness(usr.Username, usr.Email, nil); err != nil {
		return user.User{}, user.ErrUserExists
	}

	usr.ID = newID()
	repo.db.users[usr.ID] = copyUser(usr)
	return usr, nil
}

func matchesUser(usr user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" &&
		!(containsFold(usr.Name, filter.Search) || containsFold(usr.Username, filter.Search) || containsFold(usr.Email, filter.Search)) {
		return false
	}
	if len(filter.Roles) > 0 {
		var match bool
		for _, role := range filter.Roles {
			if usr.RoleStartsWith(strings.ToLower(role)) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if matchesUser(usr, filter) {
			users = append(users, copyUser(usr))
		}
	}

	ordering = append(ordering, core.DBOrdering{Field: "name", Ascending: true}, core.DBOrdering{Field: "id", Ascending: true})
	sort.Slice(users, func(i, j int) bool {
		a, b := users[i], users[j]
		return less(ordering, func(field string) int {
			switch field {
			case "id":
				return cmpString(a.ID, b.ID)
			case "name":
				return cmpString(a.Name, b.Name)
			case "username":
				return cmpString(a.Username, b.Username)
			case "email":
				return cmpString(a.Email, b.Email)
			case "is_active":
				return cmpBool(a.IsActive, b.IsActive)
			case "created_at":
				return cmpTime(a.CreatedAt, b.CreatedAt)
			case "updated_at":
				return cmpTime(a.UpdatedAt, b.UpdatedAt)
			case "last_login":
				return cmpTime(a.LastLogin, b.LastLogin)
			}
			return 0
		})
	})
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return copyUser(usr), nil
		}
		return user.User{}, user.ErrNotFound
	}

	var match func(usr user.User) bool
	switch {
	case filter.Username != "":
		match = func(usr user.User) bool { return usr.Username == filter.Username }
	case filter.Email != "":
		match = func(usr user.User) bool { return usr.Email == filter.Email }
	case len(filter.UsernameOrEmail) > 0:
		uname, email := filter.UsernameOrEmail[0], filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 && filter.UsernameOrEmail[1] != "" {
			email = filter.UsernameOrEmail[1]
			if uname == "" {
				uname = email
			}
		}
		if uname == "" {
			return user.User{}, user.ErrNotFound
		}
		match = func(usr user.User) bool {
			return (usr.Username != "" && usr.Username == uname) || (usr.Email != "" && usr.Email == email)
		}
	default:
		return user.User{}, user.ErrNotFound
	}

	for _, usr := range repo.db.users {
		if match(usr) {
			return copyUser(usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := repo.checkUniqueness(usr.Username, usr.Email, []user.User{usr}); err != nil {
		return user.User{}, user.ErrUserExists
	}
	repo.db.users[usr.ID] = copyUser(usr)
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	del := idSet(ids)
	for _, cls := range repo.db.classes {
		if del[cls.TeacherID] {
			return 0, user.ErrInUse
		}
	}
	for _, sub := range repo.db.submissions {
		if del[sub.TeacherID] {
			return 0, user.ErrInUse
		}
	}

	var cnt int
	for id := range del {
		if _, ok := repo.db.users[id]; !ok {
			continue
		}
		delete(repo.db.users, id)
		cnt++
	}

	// cascades
	for _, students := range repo.db.enrollments {
		for id := range students {
			if del[id] {
				delete(students, id)
			}
		}
	}
	for key := range repo.db.scores {
		if del[key.StudentID] {
			delete(repo.db.scores, key)
		}
	}
	for subID, grades := range repo.db.grades {
		kept := grades[:0]
		for _, g := range grades {
			if !del[g.StudentID] {
				kept = append(kept, g)
			}
		}
		repo.db.grades[subID] = kept
	}
	for id, sub := range repo.db.submissions {
		if del[sub.ReviewedBy] {
			sub.ReviewedBy = ""
			sub.ReviewerName = ""
			repo.db.submissions[id] = sub
		}
	}
	return cnt, nil
}
