package model

// swagger:model GradingArea
type GradingArea struct {
	BaseModel

	Component     string  `gorm:"size:100;not null" json:"component"`
	AreaName      string  `gorm:"size:100;not null" json:"areaName"`
	ContextID     uint    `gorm:"index;type:bigint unsigned" json:"contextId"`
	MinGrade      float64 `gorm:"default:0" json:"minGrade"`
	MaxGrade      float64 `gorm:"default:100" json:"maxGrade"`
	// GradeDecimals 为空时使用 grading.default_decimals，0 表示取整
	GradeDecimals *int    `json:"gradeDecimals,omitempty"`
}

func (GradingArea) TableName() string {
	return "frubric_areas"
}
