package rubric

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ScoreRange 等级分数区间，"0" 表示零分等级
type ScoreRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ParseScore accepts "0", "min-max" and "min/max".
func ParseScore(s string) (ScoreRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ScoreRange{}, fmt.Errorf("%w: empty", ErrInvalidScore)
	}
	sep := strings.IndexAny(s, "-/")
	if sep < 0 {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v != 0 {
			return ScoreRange{}, fmt.Errorf("%w: %q", ErrInvalidScore, s)
		}
		return ScoreRange{}, nil
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(s[:sep]), 64)
	if err != nil {
		return ScoreRange{}, fmt.Errorf("%w: %q", ErrInvalidScore, s)
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(s[sep+1:]), 64)
	if err != nil {
		return ScoreRange{}, fmt.Errorf("%w: %q", ErrInvalidScore, s)
	}
	if lo < 0 || hi < lo || math.IsInf(hi, 0) || math.IsNaN(hi) {
		return ScoreRange{}, fmt.Errorf("%w: %q", ErrInvalidScore, s)
	}
	return ScoreRange{Min: lo, Max: hi}, nil
}

func (r ScoreRange) IsZero() bool {
	return r.Max == 0
}

func (r ScoreRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r ScoreRange) String() string {
	if r.IsZero() {
		return "0"
	}
	return formatScore(r.Min) + "-" + formatScore(r.Max)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// levelRanges parses every live level; deleted levels are skipped.
func levelRanges(levels []*Level) ([]ScoreRange, error) {
	ranges := make([]ScoreRange, 0, len(levels))
	for _, l := range levels {
		if l.Status == StatusDelete {
			continue
		}
		r, err := ParseScore(l.Score)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// TotalOutOf 返回所有等级区间上界的最大值
func TotalOutOf(levels []*Level) (float64, error) {
	ranges, err := levelRanges(levels)
	if err != nil {
		return 0, err
	}
	var max float64
	for _, r := range ranges {
		if r.Max > max {
			max = r.Max
		}
	}
	return max, nil
}

// MinScore 返回所有等级区间下界的最小值
func MinScore(levels []*Level) (float64, error) {
	ranges, err := levelRanges(levels)
	if err != nil {
		return 0, err
	}
	if len(ranges) == 0 {
		return 0, nil
	}
	min := ranges[0].Min
	for _, r := range ranges[1:] {
		if r.Min < min {
			min = r.Min
		}
	}
	return min, nil
}

// CheckZeroLevel enforces that at most one level scores zero and that it
// ranks strictly below every other level by upper bound.
func CheckZeroLevel(levels []*Level) error {
	ranges, err := levelRanges(levels)
	if err != nil {
		return err
	}
	zero := -1
	for i, r := range ranges {
		if !r.IsZero() {
			continue
		}
		if zero >= 0 {
			return fmt.Errorf("%w: more than one zero level", ErrZeroLevel)
		}
		zero = i
	}
	if zero < 0 {
		return nil
	}
	for i, r := range ranges {
		if i != zero && r.Max <= ranges[zero].Max {
			return ErrZeroLevel
		}
	}
	return nil
}
