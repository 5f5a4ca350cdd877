package repository

import (
	"time"

	"frubric_backend/internal/model"

	"gorm.io/gorm"
)

type DefinitionRepository struct {
	DB *gorm.DB
}

func NewDefinitionRepository(db *gorm.DB) *DefinitionRepository {
	return &DefinitionRepository{DB: db}
}

func (r *DefinitionRepository) WithTx(tx *gorm.DB) *DefinitionRepository {
	return &DefinitionRepository{DB: tx}
}

func (r *DefinitionRepository) Create(def *model.GradingDefinition) error {
	return r.DB.Create(def).Error
}

func (r *DefinitionRepository) Update(def *model.GradingDefinition) error {
	return r.DB.Save(def).Error
}

func (r *DefinitionRepository) FindByID(id uint) (*model.GradingDefinition, error) {
	var def model.GradingDefinition
	err := r.DB.First(&def, id).Error
	return &def, err
}

func (r *DefinitionRepository) FindByArea(areaID uint) ([]model.GradingDefinition, error) {
	var defs []model.GradingDefinition
	err := r.DB.Where("area_id = ?", areaID).Order("id asc").Find(&defs).Error
	return defs, err
}

// FindReadyByArea 返回区域内最近一个 READY 的定义
func (r *DefinitionRepository) FindReadyByArea(areaID uint) (*model.GradingDefinition, error) {
	var def model.GradingDefinition
	err := r.DB.Where("area_id = ? AND status = ?", areaID, model.DefinitionReady).
		Order("id desc").First(&def).Error
	return &def, err
}

func (r *DefinitionRepository) UpdateStatus(id uint, status model.DefinitionStatus, userID uint) error {
	return r.DB.Model(&model.GradingDefinition{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"user_modified": userID,
			"updated_at":    time.Now(),
		}).Error
}

// Touch 记录修改人并刷新 updated_at
func (r *DefinitionRepository) Touch(id uint, userID uint) error {
	return r.DB.Model(&model.GradingDefinition{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"user_modified": userID,
			"updated_at":    time.Now(),
		}).Error
}
