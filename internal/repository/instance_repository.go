package repository

import (
	"frubric_backend/internal/model"

	"gorm.io/gorm"
)

type InstanceRepository struct {
	DB *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) *InstanceRepository {
	return &InstanceRepository{DB: db}
}

func (r *InstanceRepository) WithTx(tx *gorm.DB) *InstanceRepository {
	return &InstanceRepository{DB: tx}
}

func (r *InstanceRepository) Create(inst *model.GradingInstance) error {
	return r.DB.Create(inst).Error
}

func (r *InstanceRepository) FindByID(id uint) (*model.GradingInstance, error) {
	var inst model.GradingInstance
	err := r.DB.First(&inst, id).Error
	return &inst, err
}

func (r *InstanceRepository) Update(inst *model.GradingInstance) error {
	return r.DB.Save(inst).Error
}

// MarkNeedUpdate 将定义下所有 ACTIVE 实例置为 NEEDUPDATE，返回受影响行数
func (r *InstanceRepository) MarkNeedUpdate(definitionID uint) (int64, error) {
	res := r.DB.Model(&model.GradingInstance{}).
		Where("definition_id = ? AND status = ?", definitionID, model.InstanceActive).
		Update("status", model.InstanceNeedUpdate)
	return res.RowsAffected, res.Error
}

// ArchiveOthers 归档同一评分对象上其它 ACTIVE/NEEDUPDATE 实例
func (r *InstanceRepository) ArchiveOthers(definitionID, itemID, keepID uint) error {
	return r.DB.Model(&model.GradingInstance{}).
		Where("definition_id = ? AND item_id = ? AND id <> ? AND status IN ?",
			definitionID, itemID, keepID,
			[]model.InstanceStatus{model.InstanceActive, model.InstanceNeedUpdate}).
		Update("status", model.InstanceArchive).Error
}

func (r *InstanceRepository) ReplaceFillings(instanceID uint, fillings []model.Filling) error {
	if err := r.DB.Where("instance_id = ?", instanceID).Delete(&model.Filling{}).Error; err != nil {
		return err
	}
	if len(fillings) == 0 {
		return nil
	}
	for i := range fillings {
		fillings[i].InstanceID = instanceID
	}
	return r.DB.Create(&fillings).Error
}

func (r *InstanceRepository) ListFillings(instanceID uint) ([]model.Filling, error) {
	var fillings []model.Filling
	err := r.DB.Where("instance_id = ?", instanceID).Order("id asc").Find(&fillings).Error
	return fillings, err
}

// ListFillingsByInstances 批量读取，备份和学习成果同步使用
func (r *InstanceRepository) ListFillingsByInstances(instanceIDs []uint) ([]model.Filling, error) {
	var fillings []model.Filling
	if len(instanceIDs) == 0 {
		return fillings, nil
	}
	err := r.DB.Where("instance_id IN ?", instanceIDs).Order("id asc").Find(&fillings).Error
	return fillings, err
}

// FindCurrentByItem 返回评分对象当前有效的实例（ACTIVE 优先于 NEEDUPDATE）
func (r *InstanceRepository) FindCurrentByItem(definitionID, itemID uint) (*model.GradingInstance, error) {
	var inst model.GradingInstance
	err := r.DB.Where("definition_id = ? AND item_id = ? AND status IN ?",
		definitionID, itemID, []model.InstanceStatus{model.InstanceActive, model.InstanceNeedUpdate}).
		Order("status asc, id desc").First(&inst).Error
	return &inst, err
}

func (r *InstanceRepository) ListByDefinition(definitionID uint, statuses ...model.InstanceStatus) ([]model.GradingInstance, error) {
	var instances []model.GradingInstance
	query := r.DB.Where("definition_id = ?", definitionID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	err := query.Order("id asc").Find(&instances).Error
	return instances, err
}

// ListActive 维护任务分批扫描 ACTIVE 实例
func (r *InstanceRepository) ListActive(afterID uint, limit int) ([]model.GradingInstance, error) {
	var instances []model.GradingInstance
	err := r.DB.Where("id > ? AND status = ?", afterID, model.InstanceActive).
		Order("id asc").Limit(limit).Find(&instances).Error
	return instances, err
}

// FindIncomplete 同一评分人对同一对象未完成的实例可以复用
func (r *InstanceRepository) FindIncomplete(definitionID, raterID, itemID uint) (*model.GradingInstance, error) {
	var inst model.GradingInstance
	err := r.DB.Where("definition_id = ? AND rater_id = ? AND item_id = ? AND status = ?",
		definitionID, raterID, itemID, model.InstanceIncomplete).
		Order("id desc").First(&inst).Error
	return &inst, err
}
