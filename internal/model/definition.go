package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type DefinitionStatus int

const (
	DefinitionDraft DefinitionStatus = 10
	DefinitionReady DefinitionStatus = 20
)

const (
	PolicyLockedZero = "locked-zero"
	PolicyLinear     = "linear"
)

// DefinitionOptions 评分方法选项，存储为 JSON
type DefinitionOptions struct {
	LockZeroPoints       *bool `json:"lockzeropoints,omitempty"`
	EnableRemarks        bool  `json:"enableremarks"`
	ShowRemarksStudent   bool  `json:"showremarksstudent"`
	ShowScoreTeacher     bool  `json:"showscoreteacher"`
	ShowScoreStudent     bool  `json:"showscorestudent"`
	AlwaysShowDefinition bool  `json:"alwaysshowdefinition"`
	RequireOutcomes      bool  `json:"requireoutcomes"`
}

// Policy 返回最终成绩映射策略，未设置时使用 fallback
func (o DefinitionOptions) Policy(fallback string) string {
	if o.LockZeroPoints == nil {
		return fallback
	}
	if *o.LockZeroPoints {
		return PolicyLockedZero
	}
	return PolicyLinear
}

// swagger:model GradingDefinition
type GradingDefinition struct {
	BaseModel

	AreaID       uint             `gorm:"index;type:bigint unsigned" json:"areaId"`
	Name         string           `gorm:"size:255;not null" json:"name"`
	Description  string           `gorm:"type:text" json:"description"`
	Status       DefinitionStatus `gorm:"default:10" json:"status"`
	Options      datatypes.JSON   `json:"options"`
	CopiedFromID uint             `gorm:"default:0" json:"copiedFromId"`
	UserCreated  uint             `gorm:"type:bigint unsigned" json:"userCreated"`
	UserModified uint             `gorm:"type:bigint unsigned" json:"userModified"`
	TimeCopied   *time.Time       `json:"timeCopied,omitempty"`
}

func (GradingDefinition) TableName() string {
	return "frubric_definitions"
}

func (d *GradingDefinition) GetOptions() DefinitionOptions {
	var opts DefinitionOptions
	if len(d.Options) > 0 {
		_ = json.Unmarshal(d.Options, &opts)
	}
	return opts
}

func (d *GradingDefinition) SetOptions(opts DefinitionOptions) error {
	b, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	d.Options = datatypes.JSON(b)
	return nil
}
