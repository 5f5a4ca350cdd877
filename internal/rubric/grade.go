package rubric

import (
	"fmt"
	"math"

	"frubric_backend/internal/model"
)

// Severity 定义修改对已评分学生的影响程度 0-5
type Severity int

const (
	SeverityNone             Severity = 0
	SeverityText             Severity = 1
	SeverityScore            Severity = 2
	SeverityLevels           Severity = 3
	SeverityCriterionRemoved Severity = 4
	SeverityCriterionAdded   Severity = 5
)

func (s *Severity) Raise(v Severity) {
	if v > *s {
		*s = v
	}
}

// NeedsRegrade reports whether existing fillings must be revisited.
func (s Severity) NeedsRegrade() bool {
	return s >= SeverityText
}

// ScoreBounds 所有评价标准的最低与最高可得总分
type ScoreBounds struct {
	MinTotal float64 `json:"minTotal"`
	MaxTotal float64 `json:"maxTotal"`
}

func Bounds(criteria []*Criterion) (ScoreBounds, error) {
	var b ScoreBounds
	for _, c := range criteria {
		if c.Status == StatusDelete {
			continue
		}
		min, err := MinScore(c.Levels)
		if err != nil {
			return b, err
		}
		max, err := TotalOutOf(c.Levels)
		if err != nil {
			return b, err
		}
		b.MinTotal += min
		b.MaxTotal += max
	}
	return b, nil
}

// GradeRange 宿主评分项的成绩范围
type GradeRange struct {
	MinGrade float64
	MaxGrade float64
	Decimals int
}

// CalculateGrade maps a rubric total into the grade range.
//
//	locked-zero: max(minGrade, total/maxTotal*maxGrade)
//	linear:      (total-minTotal)/(maxTotal-minTotal)*(maxGrade-minGrade)+minGrade
func CalculateGrade(total float64, b ScoreBounds, g GradeRange, policy string) (float64, error) {
	var grade float64
	switch policy {
	case model.PolicyLockedZero:
		if b.MaxTotal <= 0 {
			return 0, ErrEmptyScoreRange
		}
		grade = math.Max(g.MinGrade, total/b.MaxTotal*g.MaxGrade)
	case model.PolicyLinear:
		if b.MaxTotal <= b.MinTotal {
			return 0, ErrEmptyScoreRange
		}
		grade = (total-b.MinTotal)/(b.MaxTotal-b.MinTotal)*(g.MaxGrade-g.MinGrade) + g.MinGrade
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
	return Round(grade, g.Decimals), nil
}

func Round(v float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(v)
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// SuggestLevelScore 按勾选描述项比例在等级区间内插值，
// 作为评分人未确认分数时的默认值
func SuggestLevelScore(l *Level) (float64, error) {
	r, err := l.Range()
	if err != nil {
		return 0, err
	}
	descs := l.LiveDescriptors()
	if len(descs) == 0 {
		return r.Min, nil
	}
	checked := 0
	for _, d := range descs {
		if d.Checked {
			checked++
		}
	}
	return r.Min + float64(checked)/float64(len(descs))*(r.Max-r.Min), nil
}
