package rubric

import (
	"errors"
	"fmt"
	"strings"
)

// Mode 编辑器模式：新建定义或编辑已保存的定义
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Document owns the criteria tree of one editing session. All mutations go
// through its methods; JSON() is the only serialisation boundary.
type Document struct {
	Mode     Mode
	Criteria []*Criterion

	ids IDGenerator
}

func NewDocument(mode Mode, criteria []*Criterion) *Document {
	if criteria == nil {
		criteria = []*Criterion{}
	}
	d := &Document{Mode: mode, Criteria: criteria}
	Walk(criteria, func(c *Criterion, l *Level, desc *Descriptor) {
		switch {
		case desc != nil:
			d.ids.Observe(desc.ID)
		case l != nil:
			d.ids.Observe(l.ID)
		default:
			d.ids.Observe(c.ID)
			d.ids.Observe(c.CID)
		}
	})
	return d
}

// LoadDocument 从隐藏字段 JSON 恢复编辑文档
func LoadDocument(mode Mode, raw []byte) (*Document, error) {
	criteria, err := DecodeCriteria(raw)
	if err != nil {
		return nil, err
	}
	return NewDocument(mode, criteria), nil
}

// JSON 返回 id_criteria 字段内容，包含待删除节点
func (d *Document) JSON() ([]byte, error) {
	return EncodeCriteria(d.Criteria)
}

// Helper 返回 criteriajsonhelper 快照：只保留可见节点，用于校验失败后重新渲染
func (d *Document) Helper() ([]byte, error) {
	visible := make([]*Criterion, 0, len(d.Criteria))
	for _, c := range d.Criteria {
		if c.Status == StatusDelete {
			continue
		}
		cp := c.Clone()
		cp.Levels = cp.LiveLevels()
		for _, l := range cp.Levels {
			l.Descriptors = l.LiveDescriptors()
		}
		visible = append(visible, cp)
	}
	return EncodeCriteria(visible)
}

func (d *Document) findCriterion(id NodeID) (*Criterion, error) {
	for _, c := range d.Criteria {
		if c.Matches(id) && c.Status != StatusDelete {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCriterionNotFound, id)
}

func (d *Document) findLevel(cid, lid NodeID) (*Criterion, *Level, error) {
	c, err := d.findCriterion(cid)
	if err != nil {
		return nil, nil, err
	}
	l := c.FindLevel(lid)
	if l == nil || l.Status == StatusDelete {
		return nil, nil, fmt.Errorf("%w: %s", ErrLevelNotFound, lid)
	}
	return c, l, nil
}

func (d *Document) findDescriptor(cid, lid, did NodeID) (*Level, *Descriptor, error) {
	_, l, err := d.findLevel(cid, lid)
	if err != nil {
		return nil, nil, err
	}
	desc := l.FindDescriptor(did)
	if desc == nil || desc.Status == StatusDelete {
		return nil, nil, fmt.Errorf("%w: %s", ErrDescriptorMissing, did)
	}
	return l, desc, nil
}

func (d *Document) liveCount() int {
	n := 0
	for _, c := range d.Criteria {
		if c.Status != StatusDelete {
			n++
		}
	}
	return n
}

// AddCriterion 新增评价标准
func (d *Document) AddCriterion(description string) *Criterion {
	id := d.ids.Next()
	c := &Criterion{
		ID:          id,
		CID:         id,
		Status:      StatusNew,
		Description: strings.TrimSpace(description),
		RowIndex:    d.liveCount(),
		Levels:      []*Level{},
		Visibility:  true,
	}
	d.Criteria = append(d.Criteria, c)
	return c
}

// AddLevel 在评价标准下新增等级
func (d *Document) AddLevel(cid NodeID, score, definition string) (*Level, error) {
	c, err := d.findCriterion(cid)
	if err != nil {
		return nil, err
	}
	if _, err := ParseScore(score); err != nil {
		return nil, err
	}
	l := &Level{
		ID:          d.ids.Next(),
		Status:      StatusNew,
		Score:       strings.TrimSpace(score),
		Definition:  definition,
		Descriptors: []*Descriptor{},
	}
	c.Levels = append(c.Levels, l)
	c.Refresh()
	return l, nil
}

// AddDescriptor 在等级下新增描述项
func (d *Document) AddDescriptor(cid, lid NodeID, text string) (*Descriptor, error) {
	_, l, err := d.findLevel(cid, lid)
	if err != nil {
		return nil, err
	}
	desc := &Descriptor{
		ID:     d.ids.Next(),
		Status: StatusNew,
		Text:   strings.TrimSpace(text),
	}
	l.Descriptors = append(l.Descriptors, desc)
	return desc, nil
}

// touch applies the edit transition, but only for saved nodes of a saved definition.
func (d *Document) touch(status *NodeStatus, id NodeID) error {
	if d.Mode != ModeEdit || id.IsPending() {
		return nil
	}
	next, err := Transition(*status, EventEdit)
	if err != nil {
		return err
	}
	*status = next
	return nil
}

func (d *Document) EditDescription(cid NodeID, text string) error {
	c, err := d.findCriterion(cid)
	if err != nil {
		return err
	}
	c.Description = strings.TrimSpace(text)
	if c.IsPending() {
		return nil
	}
	return d.touch(&c.Status, c.ID)
}

// EditMark 修改等级分数区间
func (d *Document) EditMark(cid, lid NodeID, score string) error {
	c, l, err := d.findLevel(cid, lid)
	if err != nil {
		return err
	}
	if _, err := ParseScore(score); err != nil {
		return err
	}
	l.Score = strings.TrimSpace(score)
	c.Refresh()
	return d.touch(&l.Status, l.ID)
}

func (d *Document) EditLevelDefinition(cid, lid NodeID, definition string) error {
	_, l, err := d.findLevel(cid, lid)
	if err != nil {
		return err
	}
	l.Definition = definition
	return d.touch(&l.Status, l.ID)
}

func (d *Document) EditDescriptor(cid, lid, did NodeID, text string) error {
	_, desc, err := d.findDescriptor(cid, lid, did)
	if err != nil {
		return err
	}
	desc.Text = strings.TrimSpace(text)
	return d.touch(&desc.Status, desc.ID)
}

func (d *Document) SetOutcome(cid NodeID, outcomeID *uint) error {
	c, err := d.findCriterion(cid)
	if err != nil {
		return err
	}
	c.OutcomeID = outcomeID
	if c.IsPending() {
		return nil
	}
	return d.touch(&c.Status, c.ID)
}

// SetVisibility 隐藏的评价标准仍参与评分，只是不对学生展示
func (d *Document) SetVisibility(cid NodeID, visible bool) error {
	c, err := d.findCriterion(cid)
	if err != nil {
		return err
	}
	c.Visibility = visible
	if c.IsPending() {
		return nil
	}
	return d.touch(&c.Status, c.ID)
}

// RemoveCriterion 删除评价标准；未保存过的直接移除，已保存的级联标记 DELETE
func (d *Document) RemoveCriterion(cid NodeID) error {
	c, err := d.findCriterion(cid)
	if err != nil {
		return err
	}
	if c.IsPending() {
		d.Criteria = dropCriterion(d.Criteria, c)
		d.reindex()
		return nil
	}
	if err := markDeleted(&c.Status); err != nil {
		return err
	}
	kept := c.Levels[:0]
	for _, l := range c.Levels {
		if l.ID.IsPending() {
			continue
		}
		if err := cascadeLevel(l); err != nil {
			return err
		}
		kept = append(kept, l)
	}
	c.Levels = kept
	d.reindex()
	return nil
}

// DeleteLevel 删除等级及其描述项
func (d *Document) DeleteLevel(cid, lid NodeID) error {
	c, l, err := d.findLevel(cid, lid)
	if err != nil {
		return err
	}
	if l.ID.IsPending() {
		c.Levels = dropLevel(c.Levels, l)
	} else if err := cascadeLevel(l); err != nil {
		return err
	}
	c.Refresh()
	return nil
}

func (d *Document) DeleteDescriptor(cid, lid, did NodeID) error {
	l, desc, err := d.findDescriptor(cid, lid, did)
	if err != nil {
		return err
	}
	if desc.ID.IsPending() {
		l.Descriptors = dropDescriptor(l.Descriptors, desc)
		return nil
	}
	return markDeleted(&desc.Status)
}

func cascadeLevel(l *Level) error {
	if err := markDeleted(&l.Status); err != nil {
		return err
	}
	kept := l.Descriptors[:0]
	for _, desc := range l.Descriptors {
		if desc.ID.IsPending() {
			continue
		}
		if err := markDeleted(&desc.Status); err != nil {
			return err
		}
		kept = append(kept, desc)
	}
	l.Descriptors = kept
	return nil
}

func markDeleted(status *NodeStatus) error {
	next, err := Transition(*status, EventDelete)
	if err != nil {
		return err
	}
	*status = next
	return nil
}

func (d *Document) reindex() {
	idx := 0
	for _, c := range d.Criteria {
		if c.Status == StatusDelete {
			continue
		}
		c.RowIndex = idx
		idx++
	}
}

func dropCriterion(list []*Criterion, target *Criterion) []*Criterion {
	res := list[:0]
	for _, c := range list {
		if c != target {
			res = append(res, c)
		}
	}
	return res
}

func dropLevel(list []*Level, target *Level) []*Level {
	res := list[:0]
	for _, l := range list {
		if l != target {
			res = append(res, l)
		}
	}
	return res
}

func dropDescriptor(list []*Descriptor, target *Descriptor) []*Descriptor {
	res := list[:0]
	for _, d := range list {
		if d != target {
			res = append(res, d)
		}
	}
	return res
}

// RangeViolation 总分输入超出范围时返回，仅用于提示，不自动修正
type RangeViolation struct {
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

func (r RangeViolation) Error() string {
	return fmt.Sprintf("%s is outside [%s, %s]", formatScore(r.Value), formatScore(r.Min), formatScore(r.Max))
}

// CheckTotal validates a criterion total against its levels' range.
func (d *Document) CheckTotal(cid NodeID, value float64) (*RangeViolation, error) {
	c, err := d.findCriterion(cid)
	if err != nil {
		return nil, err
	}
	min, err := MinScore(c.Levels)
	if err != nil {
		return nil, err
	}
	max, err := TotalOutOf(c.Levels)
	if err != nil {
		return nil, err
	}
	if value < min || value > max {
		return &RangeViolation{Value: value, Min: min, Max: max}, nil
	}
	return nil, nil
}

// ValidateOptions 控制保存时的校验范围
type ValidateOptions struct {
	Draft           bool
	RequireOutcomes bool
}

// Validate 收集每个字段的第一条错误；草稿只检查分数格式
func Validate(criteria []*Criterion, opts ValidateOptions) ValidationErrors {
	errs := ValidationErrors{}
	live := 0
	for _, c := range criteria {
		if c.Status == StatusDelete {
			continue
		}
		live++
		key := fmt.Sprintf("criteria[%s]", c.CID)
		levels := c.LiveLevels()
		for _, l := range levels {
			if _, err := ParseScore(l.Score); err != nil {
				errs.Add(fmt.Sprintf("%s.levels[%s].score", key, l.ID), err.Error())
			}
		}
		if opts.Draft {
			continue
		}
		if c.Description == "" {
			errs.Add(key+".description", "description is required")
		}
		if len(levels) == 0 {
			errs.Add(key+".levels", "at least one level is required")
		}
		if opts.RequireOutcomes && c.OutcomeID == nil {
			errs.Add(key+".outcome", "an outcome must be mapped")
		}
		for _, l := range levels {
			lkey := fmt.Sprintf("%s.levels[%s]", key, l.ID)
			descs := l.LiveDescriptors()
			if len(descs) == 0 {
				errs.Add(lkey+".descriptors", "at least one descriptor is required")
			}
			for _, desc := range descs {
				if desc.Text == "" {
					errs.Add(fmt.Sprintf("%s.descriptors[%s].text", lkey, desc.ID), "descriptor text is required")
				}
			}
		}
		if err := CheckZeroLevel(levels); err != nil && !errors.Is(err, ErrInvalidScore) {
			errs.Add(key+".levels", err.Error())
		}
	}
	if !opts.Draft && live == 0 {
		errs.Add("criteria", "at least one criterion is required")
	}
	return errs
}

// Validate 校验文档当前内容
func (d *Document) Validate(opts ValidateOptions) ValidationErrors {
	return Validate(d.Criteria, opts)
}
