package rubric

// Descriptor 等级下的一条可勾选描述
type Descriptor struct {
	ID      NodeID     `json:"descriptorid"`
	Checked bool       `json:"checked"`
	Text    string     `json:"descText"`
	Delete  bool       `json:"delete"`
	Status  NodeStatus `json:"status,omitempty"`
}

// Level 评价标准下的一个成就等级
type Level struct {
	ID          NodeID        `json:"id"`
	Status      NodeStatus    `json:"status"`
	Score       string        `json:"score"`
	Definition  string        `json:"definition"`
	Descriptors []*Descriptor `json:"descriptors"`
}

// Criterion 评分表中的一行评价标准
type Criterion struct {
	ID           NodeID     `json:"id"`
	CID          NodeID     `json:"cid"`
	Status       NodeStatus `json:"status"`
	Description  string     `json:"description"`
	RowIndex     int        `json:"rowindex"`
	DefinitionID uint       `json:"definitionid"`
	Levels       []*Level   `json:"levels"`
	SumScore     float64    `json:"sumscore"`
	TotalOutOf   float64    `json:"totaloutof"`
	Visibility   bool       `json:"visibility"`
	OutcomeID    *uint      `json:"outcomeid,omitempty"`
}

// IsPending reports whether the criterion has never been written to storage.
func (c *Criterion) IsPending() bool {
	return c.ID.IsPending() || c.CID.IsPending()
}

// Matches compares against both id and cid; the editor addresses criteria by either.
func (c *Criterion) Matches(id NodeID) bool {
	return c.ID == id || (!c.CID.IsZero() && c.CID == id)
}

func (c *Criterion) FindLevel(id NodeID) *Level {
	for _, l := range c.Levels {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// LiveLevels 返回未被标记删除的等级
func (c *Criterion) LiveLevels() []*Level {
	res := make([]*Level, 0, len(c.Levels))
	for _, l := range c.Levels {
		if l.Status != StatusDelete {
			res = append(res, l)
		}
	}
	return res
}

// Refresh recomputes totaloutof; unparsable scores leave the old value.
func (c *Criterion) Refresh() {
	if total, err := TotalOutOf(c.Levels); err == nil {
		c.TotalOutOf = total
	}
}

func (l *Level) FindDescriptor(id NodeID) *Descriptor {
	for _, d := range l.Descriptors {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (l *Level) LiveDescriptors() []*Descriptor {
	res := make([]*Descriptor, 0, len(l.Descriptors))
	for _, d := range l.Descriptors {
		if d.Status != StatusDelete {
			res = append(res, d)
		}
	}
	return res
}

func (l *Level) Range() (ScoreRange, error) {
	return ParseScore(l.Score)
}

// Clone 深拷贝等级，用于冻结评分快照
func (l *Level) Clone() *Level {
	cp := *l
	cp.Descriptors = make([]*Descriptor, len(l.Descriptors))
	for i, d := range l.Descriptors {
		dc := *d
		cp.Descriptors[i] = &dc
	}
	return &cp
}

func (c *Criterion) Clone() *Criterion {
	cp := *c
	if c.OutcomeID != nil {
		oid := *c.OutcomeID
		cp.OutcomeID = &oid
	}
	cp.Levels = make([]*Level, len(c.Levels))
	for i, l := range c.Levels {
		cp.Levels[i] = l.Clone()
	}
	return &cp
}

// Walk visits every node of the tree.
func Walk(criteria []*Criterion, fn func(c *Criterion, l *Level, d *Descriptor)) {
	for _, c := range criteria {
		fn(c, nil, nil)
		for _, l := range c.Levels {
			fn(c, l, nil)
			for _, d := range l.Descriptors {
				fn(c, l, d)
			}
		}
	}
}
