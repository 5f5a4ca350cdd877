package repository

import (
	"frubric_backend/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CriterionRepository 负责评分树三张表（评价标准、等级、描述项）的读写
type CriterionRepository struct {
	DB *gorm.DB
}

func NewCriterionRepository(db *gorm.DB) *CriterionRepository {
	return &CriterionRepository{DB: db}
}

func (r *CriterionRepository) WithTx(tx *gorm.DB) *CriterionRepository {
	return &CriterionRepository{DB: tx}
}

// LoadRows 读取定义下的全部行数据
func (r *CriterionRepository) LoadRows(definitionID uint) ([]model.Criterion, []model.Level, []model.Descriptor, error) {
	criteria, err := r.ListCriteria(definitionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(criteria) == 0 {
		return criteria, []model.Level{}, []model.Descriptor{}, nil
	}
	ids := make([]uint, 0, len(criteria))
	for _, c := range criteria {
		ids = append(ids, c.ID)
	}
	levels, err := r.ListLevels(ids)
	if err != nil {
		return nil, nil, nil, err
	}
	descriptors, err := r.ListDescriptors(ids)
	if err != nil {
		return nil, nil, nil, err
	}
	return criteria, levels, descriptors, nil
}

func (r *CriterionRepository) ListCriteria(definitionID uint) ([]model.Criterion, error) {
	var criteria []model.Criterion
	err := r.DB.Where("definition_id = ?", definitionID).
		Order("sort_order asc, id asc").Find(&criteria).Error
	return criteria, err
}

func (r *CriterionRepository) ListLevels(criterionIDs []uint) ([]model.Level, error) {
	var levels []model.Level
	if len(criterionIDs) == 0 {
		return levels, nil
	}
	err := r.DB.Where("criterion_id IN ?", criterionIDs).Order("id asc").Find(&levels).Error
	return levels, err
}

func (r *CriterionRepository) ListDescriptors(criterionIDs []uint) ([]model.Descriptor, error) {
	var descriptors []model.Descriptor
	if len(criterionIDs) == 0 {
		return descriptors, nil
	}
	err := r.DB.Where("criterion_id IN ?", criterionIDs).Order("id asc").Find(&descriptors).Error
	return descriptors, err
}

func (r *CriterionRepository) FindCriterion(id uint) (*model.Criterion, error) {
	var c model.Criterion
	err := r.DB.First(&c, id).Error
	return &c, err
}

func (r *CriterionRepository) FindLevel(id uint) (*model.Level, error) {
	var l model.Level
	err := r.DB.First(&l, id).Error
	return &l, err
}

func (r *CriterionRepository) CreateCriterion(c *model.Criterion) error {
	return r.DB.Create(c).Error
}

func (r *CriterionRepository) UpdateCriterion(id uint, fields map[string]interface{}) error {
	return r.DB.Model(&model.Criterion{}).Where("id = ?", id).Updates(fields).Error
}

func (r *CriterionRepository) SetCriteriaJSON(id uint, raw []byte) error {
	return r.DB.Model(&model.Criterion{}).Where("id = ?", id).
		Update("criteria_json", datatypes.JSON(raw)).Error
}

// DeleteCriterion 按描述项、等级、评价标准的顺序删除
func (r *CriterionRepository) DeleteCriterion(id uint) error {
	if err := r.DB.Where("criterion_id = ?", id).Delete(&model.Descriptor{}).Error; err != nil {
		return err
	}
	if err := r.DB.Where("criterion_id = ?", id).Delete(&model.Level{}).Error; err != nil {
		return err
	}
	return r.DB.Delete(&model.Criterion{}, id).Error
}

func (r *CriterionRepository) CreateLevel(l *model.Level) error {
	return r.DB.Create(l).Error
}

func (r *CriterionRepository) UpdateLevel(id uint, fields map[string]interface{}) error {
	return r.DB.Model(&model.Level{}).Where("id = ?", id).Updates(fields).Error
}

func (r *CriterionRepository) SetLevelDefinition(id uint, raw []byte) error {
	return r.DB.Model(&model.Level{}).Where("id = ?", id).
		Update("definition", datatypes.JSON(raw)).Error
}

func (r *CriterionRepository) DeleteLevel(id uint) error {
	if err := r.DB.Where("level_id = ?", id).Delete(&model.Descriptor{}).Error; err != nil {
		return err
	}
	return r.DB.Delete(&model.Level{}, id).Error
}

func (r *CriterionRepository) CreateDescriptor(d *model.Descriptor) error {
	return r.DB.Create(d).Error
}

func (r *CriterionRepository) UpdateDescriptor(id uint, fields map[string]interface{}) error {
	return r.DB.Model(&model.Descriptor{}).Where("id = ?", id).Updates(fields).Error
}

func (r *CriterionRepository) DeleteDescriptor(id uint) error {
	return r.DB.Delete(&model.Descriptor{}, id).Error
}

func (r *CriterionRepository) ListDescriptorsByLevel(levelID uint) ([]model.Descriptor, error) {
	var descriptors []model.Descriptor
	err := r.DB.Where("level_id = ?", levelID).Order("id asc").Find(&descriptors).Error
	return descriptors, err
}
