package repository

import (
	"errors"

	"frubric_backend/internal/model"

	"gorm.io/gorm"
)

type GradeCategoryRepository struct {
	DB *gorm.DB
}

func NewGradeCategoryRepository(db *gorm.DB) *GradeCategoryRepository {
	return &GradeCategoryRepository{DB: db}
}

func (r *GradeCategoryRepository) FindByArea(areaID uint) (*model.GradeCategory, error) {
	var cat model.GradeCategory
	err := r.DB.Where("area_id = ?", areaID).First(&cat).Error
	return &cat, err
}

// EnsureForArea 区域没有成绩分类时创建，返回是否新建
func (r *GradeCategoryRepository) EnsureForArea(area *model.GradingArea, aggregation string) (bool, error) {
	_, err := r.FindByArea(area.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	cat := &model.GradeCategory{
		AreaID:      area.ID,
		Fullname:    area.AreaName,
		Aggregation: aggregation,
	}
	if err := r.DB.Create(cat).Error; err != nil {
		return false, err
	}
	return true, nil
}
