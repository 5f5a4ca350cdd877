package repository

import (
	"frubric_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OutcomeRepository struct {
	DB *gorm.DB
}

func NewOutcomeRepository(db *gorm.DB) *OutcomeRepository {
	return &OutcomeRepository{DB: db}
}

func (r *OutcomeRepository) Create(o *model.Outcome) error {
	return r.DB.Create(o).Error
}

func (r *OutcomeRepository) FindByIDs(ids []uint) ([]model.Outcome, error) {
	var outcomes []model.Outcome
	if len(ids) == 0 {
		return outcomes, nil
	}
	err := r.DB.Where("id IN ?", ids).Find(&outcomes).Error
	return outcomes, err
}

func (r *OutcomeRepository) List() ([]model.Outcome, error) {
	var outcomes []model.Outcome
	err := r.DB.Order("id asc").Find(&outcomes).Error
	return outcomes, err
}

// UpsertGrade 以 (outcome_id, instance_id) 为唯一键写入或覆盖成绩
func (r *OutcomeRepository) UpsertGrade(g *model.OutcomeGrade) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outcome_id"}, {Name: "instance_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"grade", "item_id", "updated_at"}),
	}).Create(g).Error
}

func (r *OutcomeRepository) ListGradesByItem(itemID uint) ([]model.OutcomeGrade, error) {
	var grades []model.OutcomeGrade
	err := r.DB.Where("item_id = ?", itemID).Order("outcome_id asc").Find(&grades).Error
	return grades, err
}
