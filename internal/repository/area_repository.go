package repository

import (
	"errors"

	"frubric_backend/internal/model"

	"gorm.io/gorm"
)

type AreaRepository struct {
	DB *gorm.DB
}

func NewAreaRepository(db *gorm.DB) *AreaRepository {
	return &AreaRepository{DB: db}
}

func (r *AreaRepository) WithTx(tx *gorm.DB) *AreaRepository {
	return &AreaRepository{DB: tx}
}

func (r *AreaRepository) Create(area *model.GradingArea) error {
	return r.DB.Create(area).Error
}

func (r *AreaRepository) FindByID(id uint) (*model.GradingArea, error) {
	var area model.GradingArea
	err := r.DB.First(&area, id).Error
	return &area, err
}

// FindOrCreate 按 (context, component, areaName) 定位评分区域，不存在则创建
func (r *AreaRepository) FindOrCreate(area *model.GradingArea) (*model.GradingArea, error) {
	var existing model.GradingArea
	err := r.DB.Where("context_id = ? AND component = ? AND area_name = ?",
		area.ContextID, area.Component, area.AreaName).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := r.DB.Create(area).Error; err != nil {
		return nil, err
	}
	return area, nil
}

func (r *AreaRepository) ListByContext(contextID uint) ([]model.GradingArea, error) {
	var areas []model.GradingArea
	err := r.DB.Where("context_id = ?", contextID).Order("id asc").Find(&areas).Error
	return areas, err
}

// ListAll 维护任务使用
func (r *AreaRepository) ListAll() ([]model.GradingArea, error) {
	var areas []model.GradingArea
	err := r.DB.Order("id asc").Find(&areas).Error
	return areas, err
}
