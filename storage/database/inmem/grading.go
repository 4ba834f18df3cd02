package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/alama/core/class"
	"github.com/trezcool/alama/core/grading"
)

type gradingRepository struct {
	db *DB
}

var _ grading.Repository = (*gradingRepository)(nil) // interface compliance check

func NewGradingRepository(db *DB) grading.Repository {
	return &gradingRepository{db: db}
}

// byPosition orders scheme items by position, name then ID.
func byPosition(posA, posB int, nameA, nameB, idA, idB string) bool {
	if posA != posB {
		return posA < posB
	}
	if nameA != nameB {
		return nameA < nameB
	}
	return idA < idB
}

func (db *DB) criterionView(c grading.Criterion) grading.Criterion {
	c.Components = []grading.Component{}
	for _, comp := range db.components {
		if comp.CriterionID == c.ID {
			c.Components = append(c.Components, comp)
		}
	}
	sort.Slice(c.Components, func(i, j int) bool {
		a, b := c.Components[i], c.Components[j]
		return byPosition(a.Position, b.Position, a.Name, b.Name, a.ID, b.ID)
	})
	return c
}

func (db *DB) gradeTypeView(gt grading.GradeType) grading.GradeType {
	gt.Criteria = []grading.Criterion{}
	for _, c := range db.criteria {
		if c.GradeTypeID == gt.ID {
			gt.Criteria = append(gt.Criteria, db.criterionView(c))
		}
	}
	sort.Slice(gt.Criteria, func(i, j int) bool {
		a, b := gt.Criteria[i], gt.Criteria[j]
		return byPosition(a.Position, b.Position, a.Name, b.Name, a.ID, b.ID)
	})
	return gt
}

func (db *DB) deleteComponent(id string) {
	for key := range db.scores {
		if key.ComponentID == id {
			delete(db.scores, key)
		}
	}
	delete(db.components, id)
}

func (db *DB) deleteCriterion(id string) {
	for compID, comp := range db.components {
		if comp.CriterionID == id {
			db.deleteComponent(compID)
		}
	}
	delete(db.criteria, id)
}

func (db *DB) deleteGradeType(id string) {
	for cID, c := range db.criteria {
		if c.GradeTypeID == id {
			db.deleteCriterion(cID)
		}
	}
	for subID, sub := range db.submissions {
		if sub.GradeTypeID == id {
			delete(db.grades, subID)
			delete(db.submissions, subID)
		}
	}
	delete(db.gradeTypes, id)
}

func (db *DB) gradeTypesWeight(classID, exceptID string) float64 {
	var sum float64
	for _, gt := range db.gradeTypes {
		if gt.ClassID == classID && gt.ID != exceptID {
			sum += gt.Weight
		}
	}
	return sum
}

func (db *DB) criteriaWeight(gradeTypeID, exceptID string) float64 {
	var sum float64
	for _, c := range db.criteria {
		if c.GradeTypeID == gradeTypeID && c.ID != exceptID {
			sum += c.Weight
		}
	}
	return sum
}

func (repo *gradingRepository) Scheme(_ context.Context, classID string) (grading.Scheme, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	scheme := grading.Scheme{ClassID: classID, GradeTypes: []grading.GradeType{}}
	for _, gt := range repo.db.gradeTypes {
		if gt.ClassID == classID {
			scheme.GradeTypes = append(scheme.GradeTypes, repo.db.gradeTypeView(gt))
		}
	}
	sort.Slice(scheme.GradeTypes, func(i, j int) bool {
		a, b := scheme.GradeTypes[i], scheme.GradeTypes[j]
		return byPosition(a.Position, b.Position, a.Name, b.Name, a.ID, b.ID)
	})
	return scheme, nil
}

// Grade Types

func (repo *gradingRepository) GetGradeType(_ context.Context, id string) (grading.GradeType, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if gt, ok := repo.db.gradeTypes[id]; ok {
		return repo.db.gradeTypeView(gt), nil
	}
	return grading.GradeType{}, grading.ErrGradeTypeNotFound
}

func (repo *gradingRepository) CreateGradeType(_ context.Context, gt grading.GradeType) (grading.GradeType, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[gt.ClassID]; !ok {
		return grading.GradeType{}, class.ErrNotFound
	}
	if err := grading.CheckSiblings(repo.db.gradeTypesWeight(gt.ClassID, ""), gt.Weight); err != nil {
		return grading.GradeType{}, err
	}
	gt.ID = newID()
	gt.Criteria = nil
	repo.db.gradeTypes[gt.ID] = gt
	gt.Criteria = []grading.Criterion{}
	return gt, nil
}

func (repo *gradingRepository) UpdateGradeType(_ context.Context, gt grading.GradeType) (grading.GradeType, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.gradeTypes[gt.ID]
	if !ok {
		return grading.GradeType{}, grading.ErrGradeTypeNotFound
	}
	if err := grading.CheckSiblings(repo.db.gradeTypesWeight(orig.ClassID, orig.ID), gt.Weight); err != nil {
		return grading.GradeType{}, err
	}
	orig.Name = gt.Name
	orig.Weight = gt.Weight
	orig.Position = gt.Position
	repo.db.gradeTypes[gt.ID] = orig
	return repo.db.gradeTypeView(orig), nil
}

func (repo *gradingRepository) DeleteGradeType(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.gradeTypes[id]; !ok {
		return grading.ErrGradeTypeNotFound
	}
	repo.db.deleteGradeType(id)
	return nil
}

// Criteria

func (repo *gradingRepository) GetCriterion(_ context.Context, id string) (grading.Criterion, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.criteria[id]; ok {
		return repo.db.criterionView(c), nil
	}
	return grading.Criterion{}, grading.ErrCriterionNotFound
}

func (repo *gradingRepository) CreateCriterion(_ context.Context, c grading.Criterion) (grading.Criterion, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	gt, ok := repo.db.gradeTypes[c.GradeTypeID]
	if !ok {
		return grading.Criterion{}, grading.ErrGradeTypeNotFound
	}
	if err := grading.CheckSiblings(repo.db.criteriaWeight(gt.ID, ""), c.Weight); err != nil {
		return grading.Criterion{}, err
	}
	c.ID = newID()
	c.ClassID = gt.ClassID
	c.Components = nil
	repo.db.criteria[c.ID] = c
	c.Components = []grading.Component{}
	return c, nil
}

func (repo *gradingRepository) UpdateCriterion(_ context.Context, c grading.Criterion) (grading.Criterion, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.criteria[c.ID]
	if !ok {
		return grading.Criterion{}, grading.ErrCriterionNotFound
	}
	if err := grading.CheckSiblings(repo.db.criteriaWeight(orig.GradeTypeID, orig.ID), c.Weight); err != nil {
		return grading.Criterion{}, err
	}
	orig.Name = c.Name
	orig.Weight = c.Weight
	orig.Position = c.Position
	repo.db.criteria[c.ID] = orig
	return repo.db.criterionView(orig), nil
}

func (repo *gradingRepository) DeleteCriterion(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.criteria[id]; !ok {
		return grading.ErrCriterionNotFound
	}
	repo.db.deleteCriterion(id)
	return nil
}

// Components

func (repo *gradingRepository) GetComponent(_ context.Context, id string) (grading.Component, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if comp, ok := repo.db.components[id]; ok {
		return comp, nil
	}
	return grading.Component{}, grading.ErrComponentNotFound
}

func (repo *gradingRepository) CreateComponent(_ context.Context, comp grading.Component) (grading.Component, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c, ok := repo.db.criteria[comp.CriterionID]
	if !ok {
		return grading.Component{}, grading.ErrCriterionNotFound
	}
	comp.ID = newID()
	comp.GradeTypeID = c.GradeTypeID
	comp.ClassID = c.ClassID
	repo.db.components[comp.ID] = comp
	return comp, nil
}

func (repo *gradingRepository) UpdateComponent(_ context.Context, comp grading.Component) (grading.Component, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.components[comp.ID]
	if !ok {
		return grading.Component{}, grading.ErrComponentNotFound
	}
	orig.Name = comp.Name
	orig.MaxScore = comp.MaxScore
	orig.Position = comp.Position
	repo.db.components[comp.ID] = orig
	return orig, nil
}

func (repo *gradingRepository) DeleteComponent(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.components[id]; !ok {
		return grading.ErrComponentNotFound
	}
	repo.db.deleteComponent(id)
	return nil
}

// Scores

func (repo *gradingRepository) IsLocked(_ context.Context, gradeTypeID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.isLocked(gradeTypeID), nil
}

func (db *DB) isLocked(gradeTypeID string) bool {
	for _, sub := range db.submissions {
		if sub.GradeTypeID == gradeTypeID && (sub.IsPending() || sub.IsApproved()) {
			return true
		}
	}
	return false
}

func (repo *gradingRepository) Scores(_ context.Context, classID string) ([]grading.Score, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	scores := make([]grading.Score, 0)
	for key, s := range repo.db.scores {
		if repo.db.components[key.ComponentID].ClassID == classID {
			scores = append(scores, s)
		}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].ComponentID != scores[j].ComponentID {
			return scores[i].ComponentID < scores[j].ComponentID
		}
		return scores[i].StudentID < scores[j].StudentID
	})
	return scores, nil
}

func (repo *gradingRepository) SaveScores(_ context.Context, scores []grading.Score, cleared []grading.ScoreKey) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, s := range scores {
		if _, ok := repo.db.components[s.ComponentID]; !ok {
			return grading.ErrComponentNotFound
		}
	}
	for _, s := range scores {
		repo.db.scores[grading.ScoreKey{ComponentID: s.ComponentID, StudentID: s.StudentID}] = s
	}
	for _, key := range cleared {
		delete(repo.db.scores, key)
	}
	return nil
}
