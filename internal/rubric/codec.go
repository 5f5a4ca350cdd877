package rubric

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"frubric_backend/internal/model"

	"github.com/ecodeclub/ekit/slice"
)

// DecodeCriteria 解析编辑器提交的 id_criteria JSON
func DecodeCriteria(raw []byte) ([]*Criterion, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return []*Criterion{}, nil
	}
	var criteria []*Criterion
	if err := json.Unmarshal(raw, &criteria); err != nil {
		return nil, fmt.Errorf("decode criteria: %w", err)
	}
	for _, c := range criteria {
		normalizeCriterion(c)
	}
	return criteria, nil
}

func EncodeCriteria(criteria []*Criterion) ([]byte, error) {
	if criteria == nil {
		criteria = []*Criterion{}
	}
	for _, c := range criteria {
		syncDeleteFlags(c)
	}
	return json.Marshal(criteria)
}

// EncodeCriterion 生成 criteria_json 列内容
func EncodeCriterion(c *Criterion) ([]byte, error) {
	syncDeleteFlags(c)
	return json.Marshal(c)
}

func DecodeCriterion(raw []byte) (*Criterion, error) {
	var c Criterion
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode criterion: %w", err)
	}
	normalizeCriterion(&c)
	return &c, nil
}

// EncodeLevel 生成等级 definition 列中的快照
func EncodeLevel(l *Level) ([]byte, error) {
	for _, d := range l.Descriptors {
		d.Delete = d.Status == StatusDelete
	}
	return json.Marshal(l)
}

func DecodeLevel(raw []byte) (*Level, error) {
	var l Level
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("decode level: %w", err)
	}
	normalizeLevel(&l)
	return &l, nil
}

// UnmarshalJSON 缺少 visibility 字段时视为可见
func (c *Criterion) UnmarshalJSON(raw []byte) error {
	type plain Criterion
	p := plain{Visibility: true}
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	*c = Criterion(p)
	return nil
}

// The wire format flags descriptor removal with delete:true; internally
// only Status is consulted.
func normalizeCriterion(c *Criterion) {
	if c.CID.IsZero() {
		c.CID = c.ID
	}
	if c.Levels == nil {
		c.Levels = []*Level{}
	}
	for _, l := range c.Levels {
		normalizeLevel(l)
	}
}

func normalizeLevel(l *Level) {
	if l.Descriptors == nil {
		l.Descriptors = []*Descriptor{}
	}
	for _, d := range l.Descriptors {
		if d.Delete {
			d.Status = StatusDelete
		}
	}
}

func syncDeleteFlags(c *Criterion) {
	for _, l := range c.Levels {
		for _, d := range l.Descriptors {
			d.Delete = d.Status == StatusDelete
		}
	}
}

// BuildTree 将关系表行还原为评分树；行数据是权威来源，
// 等级 definition 快照只用来恢复等级说明文字
func BuildTree(criteria []model.Criterion, levels []model.Level, descriptors []model.Descriptor) ([]*Criterion, error) {
	levelsByCriterion := make(map[uint][]model.Level, len(criteria))
	for _, l := range levels {
		levelsByCriterion[l.CriterionID] = append(levelsByCriterion[l.CriterionID], l)
	}
	descByLevel := make(map[uint][]model.Descriptor, len(levels))
	for _, d := range descriptors {
		descByLevel[d.LevelID] = append(descByLevel[d.LevelID], d)
	}

	sorted := append([]model.Criterion(nil), criteria...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SortOrder != sorted[j].SortOrder {
			return sorted[i].SortOrder < sorted[j].SortOrder
		}
		return sorted[i].ID < sorted[j].ID
	})

	tree := make([]*Criterion, 0, len(sorted))
	for idx, row := range sorted {
		c, err := CriterionFromRows(row, levelsByCriterion[row.ID], descByLevel)
		if err != nil {
			return nil, err
		}
		c.RowIndex = idx
		tree = append(tree, c)
	}
	return tree, nil
}

// CriterionFromRows 由单个评价标准的行数据构建节点
func CriterionFromRows(row model.Criterion, levels []model.Level, descByLevel map[uint][]model.Descriptor) (*Criterion, error) {
	c := &Criterion{
		ID:           PersistedID(row.ID),
		CID:          PersistedID(row.ID),
		Description:  row.Description,
		RowIndex:     row.SortOrder,
		DefinitionID: row.DefinitionID,
		Visibility:   true,
		OutcomeID:    row.OutcomeID,
	}
	if len(row.CriteriaJSON) > 0 {
		if snap, err := DecodeCriterion(row.CriteriaJSON); err == nil {
			c.Visibility = snap.Visibility
		}
	}

	c.Levels = slice.Map(levels, func(_ int, src model.Level) *Level {
		return levelFromRow(src, descByLevel[src.ID])
	})
	if err := sortLevels(c.Levels); err != nil {
		return nil, fmt.Errorf("criterion %d: %w", row.ID, err)
	}
	c.Refresh()
	return c, nil
}

func levelFromRow(row model.Level, descriptors []model.Descriptor) *Level {
	l := &Level{
		ID:    PersistedID(row.ID),
		Score: row.Score,
	}
	if len(row.Definition) > 0 {
		if snap, err := DecodeLevel(row.Definition); err == nil {
			l.Definition = snap.Definition
		} else {
			var text string
			if json.Unmarshal(row.Definition, &text) == nil {
				l.Definition = text
			}
		}
	}
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].ID < descriptors[j].ID })
	l.Descriptors = make([]*Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Deleted {
			continue
		}
		l.Descriptors = append(l.Descriptors, &Descriptor{
			ID:      PersistedID(d.ID),
			Checked: d.Selected,
			Text:    d.Description,
		})
	}
	return l
}

// sortLevels orders levels by lower bound, then upper bound, then id.
func sortLevels(levels []*Level) error {
	ranges := make(map[*Level]ScoreRange, len(levels))
	for _, l := range levels {
		r, err := ParseScore(l.Score)
		if err != nil {
			return err
		}
		ranges[l] = r
	}
	sort.SliceStable(levels, func(i, j int) bool {
		ri, rj := ranges[levels[i]], ranges[levels[j]]
		if ri.Min != rj.Min {
			return ri.Min < rj.Min
		}
		return ri.Max < rj.Max
	})
	return nil
}

// IDMaps 恢复备份时旧 ID 到新 ID 的映射
type IDMaps struct {
	DefinitionID uint
	Criteria     map[uint]uint
	Levels       map[uint]uint
	Descriptors  map[uint]uint
}

func NewIDMaps(definitionID uint) *IDMaps {
	return &IDMaps{
		DefinitionID: definitionID,
		Criteria:     map[uint]uint{},
		Levels:       map[uint]uint{},
		Descriptors:  map[uint]uint{},
	}
}

// remapID 占位 ID 原样返回；映射中不存在的数据库 ID 置空，
// 与填写记录中 criterionid/levelid 置 0 的规则一致
func remapID(id NodeID, m map[uint]uint) NodeID {
	old, ok := id.Uint()
	if !ok {
		return id
	}
	if nid, ok := m[old]; ok {
		return PersistedID(nid)
	}
	return ""
}

// RemapCriterion rewrites every embedded id of a criterion snapshot.
func (m *IDMaps) RemapCriterion(c *Criterion) {
	c.ID = remapID(c.ID, m.Criteria)
	c.CID = remapID(c.CID, m.Criteria)
	if m.DefinitionID != 0 {
		c.DefinitionID = m.DefinitionID
	}
	for _, l := range c.Levels {
		m.RemapLevel(l)
	}
}

func (m *IDMaps) RemapLevel(l *Level) {
	l.ID = remapID(l.ID, m.Levels)
	for _, d := range l.Descriptors {
		d.ID = remapID(d.ID, m.Descriptors)
	}
}

// RemapCriterionJSON 解码、重映射并重新编码 criteria_json
func (m *IDMaps) RemapCriterionJSON(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw, nil
	}
	c, err := DecodeCriterion(raw)
	if err != nil {
		return nil, err
	}
	m.RemapCriterion(c)
	return EncodeCriterion(c)
}

func (m *IDMaps) RemapLevelJSON(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw, nil
	}
	l, err := DecodeLevel(raw)
	if err != nil {
		return nil, err
	}
	m.RemapLevel(l)
	return EncodeLevel(l)
}

// Detach 深拷贝评分树并换上新的占位 ID，复制定义时整体作为新节点写入
func Detach(criteria []*Criterion) []*Criterion {
	var gen IDGenerator
	out := make([]*Criterion, 0, len(criteria))
	for _, src := range criteria {
		if src.Status == StatusDelete {
			continue
		}
		c := src.Clone()
		c.ID = gen.Next()
		c.CID = c.ID
		c.Status = StatusNew
		c.DefinitionID = 0
		c.Levels = c.LiveLevels()
		for _, l := range c.Levels {
			l.ID = gen.Next()
			l.Status = StatusNew
			l.Descriptors = l.LiveDescriptors()
			for _, d := range l.Descriptors {
				d.ID = gen.Next()
				d.Status = StatusNew
				d.Delete = false
			}
		}
		out = append(out, c)
	}
	return out
}
