package model

import "gorm.io/datatypes"

type InstanceStatus int

const (
	InstanceIncomplete InstanceStatus = 0
	InstanceActive     InstanceStatus = 1
	InstanceNeedUpdate InstanceStatus = 2
	InstanceArchive    InstanceStatus = 3
)

func (s InstanceStatus) String() string {
	switch s {
	case InstanceIncomplete:
		return "INCOMPLETE"
	case InstanceActive:
		return "ACTIVE"
	case InstanceNeedUpdate:
		return "NEEDUPDATE"
	case InstanceArchive:
		return "ARCHIVE"
	}
	return "UNKNOWN"
}

// swagger:model GradingInstance
type GradingInstance struct {
	RowBase

	DefinitionID uint           `gorm:"index;type:bigint unsigned" json:"definitionId"`
	RaterID      uint           `gorm:"index;type:bigint unsigned" json:"raterId"`
	ItemID       uint           `gorm:"index;type:bigint unsigned" json:"itemId"`
	RawGrade     *float64       `json:"rawGrade,omitempty"`
	Status       InstanceStatus `gorm:"default:0" json:"status"`
	Feedback     string         `gorm:"type:text" json:"feedback"`
}

func (GradingInstance) TableName() string {
	return "frubric_instances"
}

// Filling.LevelJSON 为评分当时等级的冻结副本，不随定义修改变化
//
// swagger:model Filling
type Filling struct {
	RowBase

	InstanceID   uint           `gorm:"index;type:bigint unsigned" json:"instanceId"`
	CriterionID  uint           `gorm:"index;type:bigint unsigned" json:"criterionId"`
	LevelID      uint           `gorm:"type:bigint unsigned" json:"levelId"`
	Remark       string         `gorm:"type:text" json:"remark"`
	RemarkFormat int            `gorm:"default:0" json:"remarkFormat"`
	LevelScore   float64        `gorm:"default:0" json:"levelScore"`
	LevelJSON    datatypes.JSON `json:"levelJson"`
}

func (Filling) TableName() string {
	return "frubric_fillings"
}
