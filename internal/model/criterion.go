package model

import "gorm.io/datatypes"

// swagger:model Criterion
type Criterion struct {
	RowBase

	DefinitionID      uint           `gorm:"index;type:bigint unsigned" json:"definitionId"`
	SortOrder         int            `gorm:"default:0" json:"sortOrder"`
	Description       string         `gorm:"type:text" json:"description"`
	DescriptionFormat int            `gorm:"default:0" json:"descriptionFormat"`
	CriteriaJSON      datatypes.JSON `json:"criteriaJson"`
	OutcomeID         *uint          `gorm:"type:bigint unsigned" json:"outcomeId,omitempty"`
}

func (Criterion) TableName() string {
	return "frubric_criteria"
}

// Level.Definition 保存该等级的 JSON 快照（含描述项）
//
// swagger:model Level
type Level struct {
	RowBase

	CriterionID      uint           `gorm:"index;type:bigint unsigned" json:"criterionId"`
	Score            string         `gorm:"size:50;not null" json:"score"`
	Definition       datatypes.JSON `json:"definition"`
	DefinitionFormat int            `gorm:"default:0" json:"definitionFormat"`
}

func (Level) TableName() string {
	return "frubric_levels"
}

// swagger:model Descriptor
type Descriptor struct {
	RowBase

	CriterionID uint    `gorm:"index;type:bigint unsigned" json:"criterionId"`
	LevelID     uint    `gorm:"index;type:bigint unsigned" json:"levelId"`
	Score       float64 `gorm:"default:0" json:"score"`
	MaxScore    float64 `gorm:"default:0" json:"maxScore"`
	Description string  `gorm:"type:text" json:"description"`
	Selected    bool    `gorm:"default:false" json:"selected"`
	Deleted     bool    `gorm:"default:false" json:"deleted"`
}

func (Descriptor) TableName() string {
	return "frubric_descript"
}
