package model

// swagger:model Outcome
type Outcome struct {
	BaseModel

	Shortname string  `gorm:"size:100;not null" json:"shortname"`
	Fullname  string  `gorm:"size:255" json:"fullname"`
	ScaleMax  float64 `gorm:"default:1" json:"scaleMax"`
}

func (Outcome) TableName() string {
	return "frubric_outcomes"
}

// OutcomeGrade 由定时任务根据评分填写同步
type OutcomeGrade struct {
	RowBase

	OutcomeID  uint    `gorm:"uniqueIndex:idx_outcome_instance;type:bigint unsigned" json:"outcomeId"`
	InstanceID uint    `gorm:"uniqueIndex:idx_outcome_instance;type:bigint unsigned" json:"instanceId"`
	ItemID     uint    `gorm:"index;type:bigint unsigned" json:"itemId"`
	Grade      float64 `json:"grade"`
}

func (OutcomeGrade) TableName() string {
	return "frubric_outcome_grades"
}

// swagger:model GradeCategory
type GradeCategory struct {
	BaseModel

	AreaID      uint   `gorm:"uniqueIndex;type:bigint unsigned" json:"areaId"`
	Fullname    string `gorm:"size:255" json:"fullname"`
	Aggregation string `gorm:"size:50;default:'mean'" json:"aggregation"`
}

func (GradeCategory) TableName() string {
	return "frubric_grade_categories"
}
