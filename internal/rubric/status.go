package rubric

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NodeStatus 标记编辑树中节点相对于数据库的状态
type NodeStatus string

const (
	StatusClean   NodeStatus = ""
	StatusNew     NodeStatus = "NEW"
	StatusUpdate  NodeStatus = "UPDATE"
	StatusUpdated NodeStatus = "UPDATED"
	StatusDelete  NodeStatus = "DELETE"
	StatusCreated NodeStatus = "CREATED"

	// StatusRemoved is never serialised; the node must be dropped from the tree.
	StatusRemoved NodeStatus = "REMOVED"
)

// Event 触发节点状态迁移的动作
type Event int

const (
	EventEdit Event = iota
	EventDelete
	EventPersist
)

func (e Event) String() string {
	switch e {
	case EventEdit:
		return "edit"
	case EventDelete:
		return "delete"
	case EventPersist:
		return "persist"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// transitions is indexed by Event.
var transitions = map[NodeStatus][3]NodeStatus{
	StatusClean:   {StatusUpdate, StatusDelete, StatusClean},
	StatusNew:     {StatusNew, StatusRemoved, StatusCreated},
	StatusUpdate:  {StatusUpdate, StatusDelete, StatusUpdated},
	StatusCreated: {StatusUpdate, StatusDelete, StatusCreated},
	StatusUpdated: {StatusUpdate, StatusDelete, StatusUpdated},
	StatusDelete:  {StatusDelete, StatusDelete, StatusRemoved},
}

// Transition 根据状态表计算下一个状态
func Transition(from NodeStatus, e Event) (NodeStatus, error) {
	row, ok := transitions[from]
	if !ok {
		return from, fmt.Errorf("%w: %q", ErrUnknownStatus, string(from))
	}
	if e < EventEdit || e > EventPersist {
		return from, fmt.Errorf("unknown event %s", e)
	}
	return row[e], nil
}

// Valid reports whether s may appear in a serialised tree.
func (s NodeStatus) Valid() bool {
	if s == StatusRemoved {
		return false
	}
	_, ok := transitions[s]
	return ok
}

// Dirty reports whether the reconciler has to write something for the node itself.
func (s NodeStatus) Dirty() bool {
	return s == StatusNew || s == StatusUpdate || s == StatusDelete
}

func (s *NodeStatus) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = StatusClean
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st := NodeStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !st.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	*s = st
	return nil
}
