package rubric

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PendingPrefix 客户端占位 ID 前缀，首次保存前使用
const PendingPrefix = "NEWID"

// NodeID is either a database id ("42") or a placeholder ("NEWID3").
// On the wire persisted ids are numbers and placeholders are strings.
type NodeID string

func PersistedID(id uint) NodeID {
	return NodeID(strconv.FormatUint(uint64(id), 10))
}

func (id NodeID) IsPending() bool {
	return strings.HasPrefix(string(id), PendingPrefix)
}

func (id NodeID) IsZero() bool {
	return id == ""
}

// Uint 返回数据库 ID；占位 ID 或空 ID 返回 false
func (id NodeID) Uint() (uint, bool) {
	if id.IsZero() || id.IsPending() {
		return 0, false
	}
	v, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func (id NodeID) pendingSeq() (uint64, bool) {
	if !id.IsPending() {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(string(id), PendingPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (id NodeID) MarshalJSON() ([]byte, error) {
	if v, ok := id.Uint(); ok {
		return []byte(strconv.FormatUint(uint64(v), 10)), nil
	}
	return json.Marshal(string(id))
}

func (id *NodeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = NodeID(strings.TrimSpace(s))
		return nil
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidNodeID, string(b))
	}
	*id = PersistedID(uint(v))
	return nil
}

// IDGenerator 单个编辑会话内单调递增的占位 ID 生成器
type IDGenerator struct {
	last uint64
}

func (g *IDGenerator) Next() NodeID {
	g.last++
	return NodeID(PendingPrefix + strconv.FormatUint(g.last, 10))
}

// Observe keeps the generator ahead of placeholders loaded from an existing tree.
func (g *IDGenerator) Observe(id NodeID) {
	if seq, ok := id.pendingSeq(); ok && seq > g.last {
		g.last = seq
	}
}
