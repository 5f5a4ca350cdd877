package rubric

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrUnknownStatus     = errors.New("unknown node status")
	ErrInvalidScore      = errors.New("invalid level score")
	ErrInvalidNodeID     = errors.New("invalid node id")
	ErrCriterionNotFound = errors.New("criterion not found")
	ErrLevelNotFound     = errors.New("level not found")
	ErrDescriptorMissing = errors.New("descriptor not found")
	ErrZeroLevel         = errors.New("only the lowest level may score zero")
	ErrEmptyScoreRange   = errors.New("criteria have no usable score range")
	ErrUnknownPolicy     = errors.New("unknown grading policy")
)

// ValidationErrors 按字段收集的校验错误，key 为字段路径
type ValidationErrors map[string]string

func (v ValidationErrors) Add(field, msg string) {
	if _, exists := v[field]; !exists {
		v[field] = msg
	}
}

func (v ValidationErrors) Empty() bool {
	return len(v) == 0
}

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return strings.Join(parts, "; ")
}
