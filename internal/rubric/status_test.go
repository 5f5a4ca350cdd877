package rubric

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	testCases := []struct {
		name  string
		from  NodeStatus
		event Event
		want  NodeStatus
	}{
		{name: "未修改节点编辑", from: StatusClean, event: EventEdit, want: StatusUpdate},
		{name: "未修改节点删除", from: StatusClean, event: EventDelete, want: StatusDelete},
		{name: "新节点编辑仍为新", from: StatusNew, event: EventEdit, want: StatusNew},
		{name: "新节点删除直接移除", from: StatusNew, event: EventDelete, want: StatusRemoved},
		{name: "新节点保存", from: StatusNew, event: EventPersist, want: StatusCreated},
		{name: "更新节点保存", from: StatusUpdate, event: EventPersist, want: StatusUpdated},
		{name: "已创建节点再次编辑", from: StatusCreated, event: EventEdit, want: StatusUpdate},
		{name: "已更新节点删除", from: StatusUpdated, event: EventDelete, want: StatusDelete},
		{name: "删除节点保存后移除", from: StatusDelete, event: EventPersist, want: StatusRemoved},
		{name: "删除节点不可编辑回来", from: StatusDelete, event: EventEdit, want: StatusDelete},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Transition(tc.from, tc.event)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTransitionUnknownStatus(t *testing.T) {
	_, err := Transition(NodeStatus("BOGUS"), EventEdit)
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestNodeStatusUnmarshal(t *testing.T) {
	var holder struct {
		Status NodeStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"update"}`), &holder))
	assert.Equal(t, StatusUpdate, holder.Status)

	require.NoError(t, json.Unmarshal([]byte(`{"status":null}`), &holder))
	assert.Equal(t, StatusClean, holder.Status)

	err := json.Unmarshal([]byte(`{"status":"REMOVED"}`), &holder)
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestNodeIDJSON(t *testing.T) {
	var ids []NodeID
	require.NoError(t, json.Unmarshal([]byte(`[12, "NEWID3", "7", null]`), &ids))
	assert.Equal(t, []NodeID{"12", "NEWID3", "7", ""}, ids)

	v, ok := ids[0].Uint()
	assert.True(t, ok)
	assert.Equal(t, uint(12), v)
	_, ok = ids[1].Uint()
	assert.False(t, ok)
	assert.True(t, ids[1].IsPending())

	b, err := json.Marshal([]NodeID{"12", "NEWID3"})
	require.NoError(t, err)
	assert.JSONEq(t, `[12, "NEWID3"]`, string(b))
}

func TestIDGenerator(t *testing.T) {
	var g IDGenerator
	assert.Equal(t, NodeID("NEWID1"), g.Next())
	g.Observe("NEWID9")
	g.Observe("42")
	g.Observe("NEWID4")
	assert.Equal(t, NodeID("NEWID10"), g.Next())
}
