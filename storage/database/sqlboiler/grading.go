package boiledrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/class"
	"github.com/trezcool/alama/core/grading"
)

type (
	gradeTypeRow struct {
		ID       string  `boil:"id"`
		ClassID  string  `boil:"class_id"`
		Name     string  `boil:"name"`
		Weight   float64 `boil:"weight"`
		Position int     `boil:"position"`
	}

	criterionRow struct {
		ID          string  `boil:"id"`
		GradeTypeID string  `boil:"grade_type_id"`
		ClassID     string  `boil:"class_id"`
		Name        string  `boil:"name"`
		Weight      float64 `boil:"weight"`
		Position    int     `boil:"position"`
	}

	componentRow struct {
		ID          string  `boil:"id"`
		CriterionID string  `boil:"criterion_id"`
		GradeTypeID string  `boil:"grade_type_id"`
		ClassID     string  `boil:"class_id"`
		Name        string  `boil:"name"`
		MaxScore    float64 `boil:"max_score"`
		Position    int     `boil:"position"`
	}

	scoreRow struct {
		ComponentID string    `boil:"component_id"`
		StudentID   string    `boil:"student_id"`
		Score       float64   `boil:"score"`
		UpdatedAt   time.Time `boil:"updated_at"`
	}
)

func (row componentRow) unboil() grading.Component {
	return grading.Component{
		ID:          row.ID,
		CriterionID: row.CriterionID,
		GradeTypeID: row.GradeTypeID,
		ClassID:     row.ClassID,
		Name:        row.Name,
		MaxScore:    row.MaxScore,
		Position:    row.Position,
	}
}

const (
	gradeTypeSelect = `SELECT gt.id, gt.class_id, gt.name, gt.weight, gt.position FROM grade_type gt`

	criterionSelect = `SELECT gc.id, gc.grade_type_id, gt.class_id, gc.name, gc.weight, gc.position
		FROM grading_criterion gc INNER JOIN grade_type gt ON gt.id = gc.grade_type_id`

	componentSelect = `SELECT cp.id, cp.criterion_id, gc.grade_type_id, gt.class_id, cp.name, cp.max_score, cp.position
		FROM component cp
		INNER JOIN grading_criterion gc ON gc.id = cp.criterion_id
		INNER JOIN grade_type gt ON gt.id = gc.grade_type_id`
)

type gradingRepository struct {
	db core.DB
}

var _ grading.Repository = (*gradingRepository)(nil) // interface compliance check

func NewGradingRepository(db core.DB) grading.Repository {
	return &gradingRepository{db: db}
}

// gradeTypes loads the grade types matching where (on alias gt) with their criteria & components.
func (repo gradingRepository) gradeTypes(ctx context.Context, where string, arg string) ([]grading.GradeType, error) {
	var (
		gtRows   []gradeTypeRow
		critRows []criterionRow
		compRows []componentRow
	)
	if err := queries.Raw(gradeTypeSelect+` WHERE `+where+` ORDER BY gt.position, gt.name, gt.id`, arg).Bind(ctx, repo.db, &gtRows); err != nil {
		return nil, errors.Wrap(err, "querying grade types")
	}
	if len(gtRows) == 0 {
		return []grading.GradeType{}, nil
	}
	if err := queries.Raw(criterionSelect+` WHERE `+where+` ORDER BY gc.position, gc.name, gc.id`, arg).Bind(ctx, repo.db, &critRows); err != nil {
		return nil, errors.Wrap(err, "querying criteria")
	}
	if err := queries.Raw(componentSelect+` WHERE `+where+` ORDER BY cp.position, cp.name, cp.id`, arg).Bind(ctx, repo.db, &compRows); err != nil {
		return nil, errors.Wrap(err, "querying components")
	}

	comps := make(map[string][]grading.Component)
	for _, row := range compRows {
		comps[row.CriterionID] = append(comps[row.CriterionID], row.unboil())
	}
	crits := make(map[string][]grading.Criterion)
	for _, row := range critRows {
		c := grading.Criterion{
			ID:          row.ID,
			GradeTypeID: row.GradeTypeID,
			ClassID:     row.ClassID,
			Name:        row.Name,
			Weight:      row.Weight,
			Position:    row.Position,
			Components:  comps[row.ID],
		}
		if c.Components == nil {
			c.Components = []grading.Component{}
		}
		crits[row.GradeTypeID] = append(crits[row.GradeTypeID], c)
	}

	gts := make([]grading.GradeType, 0, len(gtRows))
	for _, row := range gtRows {
		gt := grading.GradeType{
			ID:       row.ID,
			ClassID:  row.ClassID,
			Name:     row.Name,
			Weight:   row.Weight,
			Position: row.Position,
			Criteria: crits[row.ID],
		}
		if gt.Criteria == nil {
			gt.Criteria = []grading.Criterion{}
		}
		gts = append(gts, gt)
	}
	return gts, nil
}

func (repo gradingRepository) Scheme(ctx context.Context, classID string) (grading.Scheme, error) {
	scheme := grading.Scheme{ClassID: classID, GradeTypes: []grading.GradeType{}}
	if !isUUID(classID) {
		return scheme, nil
	}
	gts, err := repo.gradeTypes(ctx, "gt.class_id = $1", classID)
	if err != nil {
		return grading.Scheme{}, err
	}
	scheme.GradeTypes = gts
	return scheme, nil
}

// Grade Types

func (repo gradingRepository) GetGradeType(ctx context.Context, id string) (grading.GradeType, error) {
	if !isUUID(id) {
		return grading.GradeType{}, grading.ErrGradeTypeNotFound
	}
	gts, err := repo.gradeTypes(ctx, "gt.id = $1", id)
	if err != nil {
		return grading.GradeType{}, err
	}
	if len(gts) == 0 {
		return grading.GradeType{}, grading.ErrGradeTypeNotFound
	}
	return gts[0], nil
}

// checkWeights locks the parent row matched by lockQuery, then applies grading.CheckSiblings to the
// weight sum returned by sumQuery. Both queries take the parent ID as $1; sumQuery takes the ID to leave
// out as $2.
func checkWeights(ctx context.Context, tx core.DBExecutor, lockQuery, sumQuery, parentID, exceptID string, weight float64, notFound error) error {
	var locked struct {
		ID string `boil:"id"`
	}
	if err := queries.Raw(lockQuery, parentID).Bind(ctx, tx, &locked); err != nil {
		return trapNoRows(err, notFound, "locking weights")
	}
	var sum struct {
		Weight float64 `boil:"weight"`
	}
	if err := queries.Raw(sumQuery, parentID, exceptID).Bind(ctx, tx, &sum); err != nil {
		return errors.Wrap(err, "summing weights")
	}
	return grading.CheckSiblings(sum.Weight, weight)
}

const (
	lockClass           = `SELECT id FROM class WHERE id = $1 FOR UPDATE`
	lockGradeType       = `SELECT id FROM grade_type WHERE id = $1 FOR UPDATE`
	sumGradeTypesWeight = `SELECT COALESCE(SUM(weight), 0) AS weight FROM grade_type WHERE class_id = $1 AND id <> $2`
	sumCriteriaWeight   = `SELECT COALESCE(SUM(weight), 0) AS weight FROM grading_criterion WHERE grade_type_id = $1 AND id <> $2`
)

func (repo gradingRepository) CreateGradeType(ctx context.Context, gt grading.GradeType) (grading.GradeType, error) {
	if !isUUID(gt.ClassID) {
		return grading.GradeType{}, class.ErrNotFound
	}
	gt.ID = uuid.New().String()
	err := withTx(ctx, repo.db, func(tx core.DBExecutor) error {
		if err := checkWeights(ctx, tx, lockClass, sumGradeTypesWeight, gt.ClassID, gt.ID, gt.Weight, class.ErrNotFound); err != nil {
			return err
		}
		_, err := exec(ctx, tx,
			`INSERT INTO grade_type (id, class_id, name, weight, position) VALUES ($1, $2, $3, $4, $5)`,
			gt.ID, gt.ClassID, gt.Name, gt.Weight, gt.Position)
		return errors.Wrap(err, "inserting grade type")
	})
	if err != nil {
		return grading.GradeType{}, err
	}
	gt.Criteria = []grading.Criterion{}
	return gt, nil
}

func (repo gradingRepository) UpdateGradeType(ctx context.Context, gt grading.GradeType) (grading.GradeType, error) {
	if !isUUID(gt.ID, gt.ClassID) {
		return grading.GradeType{}, grading.ErrGradeTypeNotFound
	}
	err := withTx(ctx, repo.db, func(tx core.DBExecutor) error {
		if err := checkWeights(ctx, tx, lockClass, sumGradeTypesWeight, gt.ClassID, gt.ID, gt.Weight, grading.ErrGradeTypeNotFound); err != nil {
			return err
		}
		cnt, err := exec(ctx, tx,
			`UPDATE grade_type SET name = $2, weight = $3, position = $4 WHERE id = $1`,
			gt.ID, gt.Name, gt.Weight, gt.Position)
		if err != nil {
			return errors.Wrap(err, "updating grade type")
		}
		if cnt == 0 {
			return grading.ErrGradeTypeNotFound
		}
		return nil
	})
	if err != nil {
		return grading.GradeType{}, err
	}
	return gt, nil
}

func (repo gradingRepository) DeleteGradeType(ctx context.Context, id string) error {
	return repo.delete(ctx, `DELETE FROM grade_type WHERE id = $1`, id, grading.ErrGradeTypeNotFound)
}

func (repo gradingRepository) delete(ctx context.Context, query, id string, notFound error) error {
	if !isUUID(id) {
		return notFound
	}
	cnt, err := exec(ctx, repo.db, query, id)
	if err != nil {
		return errors.Wrap(err, "deleting")
	}
	if cnt == 0 {
		return notFound
	}
	return nil
}

// Criteria

func (repo gradingRepository) GetCriterion(ctx context.Context, id string) (grading.Criterion, error) {
	if !isUUID(id) {
		return grading.Criterion{}, grading.ErrCriterionNotFound
	}
	gts, err := repo.gradeTypes(ctx, "gt.id = (SELECT grade_type_id FROM grading_criterion WHERE id = $1)", id)
	if err != nil {
		return grading.Criterion{}, err
	}
	for _, gt := range gts {
		for _, c := range gt.Criteria {
			if c.ID == id {
				return c, nil
			}
		}
	}
	return grading.Criterion{}, grading.ErrCriterionNotFound
}

func (repo gradingRepository) CreateCriterion(ctx context.Context, c grading.Criterion) (grading.Criterion, error) {
	if !isUUID(c.GradeTypeID) {
		return grading.Criterion{}, grading.ErrGradeTypeNotFound
	}
	c.ID = uuid.New().String()
	err := withTx(ctx, repo.db, func(tx core.DBExecutor) error {
		if err := checkWeights(ctx, tx, lockGradeType, sumCriteriaWeight, c.GradeTypeID, c.ID, c.Weight, grading.ErrGradeTypeNotFound); err != nil {
			return err
		}
		_, err := exec(ctx, tx,
			`INSERT INTO grading_criterion (id, grade_type_id, name, weight, position) VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.GradeTypeID, c.Name, c.Weight, c.Position)
		return errors.Wrap(err, "inserting criterion")
	})
	if err != nil {
		return grading.Criterion{}, err
	}
	c.Components = []grading.Component{}
	return c, nil
}

func (repo gradingRepository) UpdateCriterion(ctx context.Context, c grading.Criterion) (grading.Criterion, error) {
	if !isUUID(c.ID, c.GradeTypeID) {
		return grading.Criterion{}, grading.ErrCriterionNotFound
	}
	err := withTx(ctx, repo.db, func(tx core.DBExecutor) error {
		if err := checkWeights(ctx, tx, lockGradeType, sumCriteriaWeight, c.GradeTypeID, c.ID, c.Weight, grading.ErrCriterionNotFound); err != nil {
			return err
		}
		cnt, err := exec(ctx, tx,
			`UPDATE grading_criterion SET name = $2, weight = $3, position = $4 WHERE id = $1`,
			c.ID, c.Name, c.Weight, c.Position)
		if err != nil {
			return errors.Wrap(err, "updating criterion")
		}
		if cnt == 0 {
			return grading.ErrCriterionNotFound
		}
		return nil
	})
	if err != nil {
		return grading.Criterion{}, err
	}
	return c, nil
}

func (repo gradingRepository) DeleteCriterion(ctx context.Context, id string) error {
	return repo.delete(ctx, `DELETE FROM grading_criterion WHERE id = $1`, id, grading.ErrCriterionNotFound)
}

// Components

func (repo gradingRepository) GetComponent(ctx context.Context, id string) (grading.Component, error) {
	if !isUUID(id) {
		return grading.Component{}, grading.ErrComponentNotFound
	}
	var row componentRow
	if err := queries.Raw(componentSelect+` WHERE cp.id = $1`, id).Bind(ctx, repo.db, &row); err != nil {
		return grading.Component{}, trapNoRows(err, grading.ErrComponentNotFound, "finding component")
	}
	return row.unboil(), nil
}

func (repo gradingRepository) CreateComponent(ctx context.Context, comp grading.Component) (grading.Component, error) {
	comp.ID = uuid.New().String()
	_, err := exec(ctx, repo.db,
		`INSERT INTO component (id, criterion_id, name, max_score, position) VALUES ($1, $2, $3, $4, $5)`,
		comp.ID, comp.CriterionID, comp.Name, comp.MaxScore, comp.Position)
	if err != nil {
		if isFKViolation(err) {
			return grading.Component{}, grading.ErrCriterionNotFound
		}
		return grading.Component{}, errors.Wrap(err, "inserting component")
	}
	return comp, nil
}

func (repo gradingRepository) UpdateComponent(ctx context.Context, comp grading.Component) (grading.Component, error) {
	cnt, err := exec(ctx, repo.db,
		`UPDATE component SET name = $2, max_score = $3, position = $4 WHERE id = $1`,
		comp.ID, comp.Name, comp.MaxScore, comp.Position)
	if err != nil {
		return grading.Component{}, errors.Wrap(err, "updating component")
	}
	if cnt == 0 {
		return grading.Component{}, grading.ErrComponentNotFound
	}
	return comp, nil
}

func (repo gradingRepository) DeleteComponent(ctx context.Context, id string) error {
	return repo.delete(ctx, `DELETE FROM component WHERE id = $1`, id, grading.ErrComponentNotFound)
}

// Scores

func (repo gradingRepository) IsLocked(ctx context.Context, gradeTypeID string) (bool, error) {
	if !isUUID(gradeTypeID) {
		return false, nil
	}
	ok, err := exists(ctx, repo.db,
		`SELECT 1 FROM grade_submission WHERE grade_type_id = $1 AND status IN ('PENDING', 'APPROVED')`, gradeTypeID)
	return ok, errors.Wrap(err, "checking grade type lock")
}

func (repo gradingRepository) Scores(ctx context.Context, classID string) ([]grading.Score, error) {
	if !isUUID(classID) {
		return []grading.Score{}, nil
	}
	var rows []scoreRow
	err := queries.Raw(
		`SELECT cs.component_id, cs.student_id, cs.score, cs.updated_at
		FROM component_score cs
		INNER JOIN component cp ON cp.id = cs.component_id
		INNER JOIN grading_criterion gc ON gc.id = cp.criterion_id
		INNER JOIN grade_type gt ON gt.id = gc.grade_type_id
		WHERE gt.class_id = $1`,
		classID).Bind(ctx, repo.db, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying scores")
	}
	scores := make([]grading.Score, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, grading.Score{
			ComponentID: row.ComponentID,
			StudentID:   row.StudentID,
			Score:       row.Score,
			UpdatedAt:   row.UpdatedAt.UTC(),
		})
	}
	return scores, nil
}

func (repo gradingRepository) SaveScores(ctx context.Context, scores []grading.Score, cleared []grading.ScoreKey) error {
	return withTx(ctx, repo.db, func(tx core.DBExecutor) error {
		for _, s := range scores {
			_, err := exec(ctx, tx,
				`INSERT INTO component_score (component_id, student_id, score, updated_at) VALUES ($1, $2, $3, $4)
				ON CONFLICT (component_id, student_id) DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`,
				s.ComponentID, s.StudentID, s.Score, s.UpdatedAt.UTC())
			if err != nil {
				return errors.Wrap(err, "saving score")
			}
		}
		for _, key := range cleared {
			_, err := exec(ctx, tx,
				`DELETE FROM component_score WHERE component_id = $1 AND student_id = $2`, key.ComponentID, key.StudentID)
			if err != nil {
				return errors.Wrap(err, "clearing score")
			}
		}
		return nil
	})
}
