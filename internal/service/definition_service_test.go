package service

import (
	"context"
	"strings"
	"testing"

	"frubric_backend/internal/model"
	"frubric_backend/internal/rubric"
	"frubric_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func countRows(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}

func TestDefinitionService_SaveAssignsIDs(t *testing.T) {
	env := newTestEnv(t)
	def, tree := env.seedDefinition(t, model.DefinitionOptions{})

	raw, err := rubric.EncodeCriteria(tree)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), rubric.PendingPrefix)

	assert.Equal(t, int64(2), countRows(t, env.db, &model.Criterion{}))
	assert.Equal(t, int64(4), countRows(t, env.db, &model.Level{}))
	assert.Equal(t, int64(5), countRows(t, env.db, &model.Descriptor{}))

	stored, err := env.definitions.DefinitionRepo.FindByID(def.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DefinitionReady, stored.Status)

	// criteria_json 快照中的 ID 必须是真实 ID
	var row model.Criterion
	require.NoError(t, env.db.First(&row, criterionID(t, tree[0])).Error)
	snap, err := rubric.DecodeCriterion(row.CriteriaJSON)
	require.NoError(t, err)
	assert.Equal(t, tree[0].ID, snap.ID)
	for _, l := range snap.Levels {
		assert.False(t, l.ID.IsPending())
	}
}

func TestDefinitionService_SaveIDMap(t *testing.T) {
	env := newTestEnv(t)
	area := env.area(t, "submissions")
	def, err := env.definitions.CreateDefinition(area.ID, teacherID, CreateDefinitionRequest{Name: "Essay"})
	require.NoError(t, err)

	res, err := env.definitions.Save(context.Background(), def.ID, teacherID, sampleDocument(t).Criteria, false)
	require.NoError(t, err)
	assert.Equal(t, rubric.SeverityCriterionAdded, res.Severity)
	// 2 个评价标准 + 4 个等级 + 5 个描述项
	assert.Len(t, res.IDMap, 11)
	for placeholder, id := range res.IDMap {
		assert.True(t, placeholder.IsPending())
		_, ok := id.Uint()
		assert.True(t, ok)
	}
}

func TestDefinitionService_SaveValidation(t *testing.T) {
	testCases := []struct {
		name    string
		draft   bool
		mutate  func(doc *rubric.Document)
		wantKey string
	}{
		{
			name: "缺少描述",
			mutate: func(doc *rubric.Document) {
				doc.AddCriterion("")
			},
			wantKey: "criteria[NEWID12].description",
		},
		{
			name: "没有评价标准",
			mutate: func(doc *rubric.Document) {
				doc.Criteria = nil
			},
			wantKey: "criteria",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			area := env.area(t, "submissions")
			def, err := env.definitions.CreateDefinition(area.ID, teacherID, CreateDefinitionRequest{Name: "Essay"})
			require.NoError(t, err)

			doc := sampleDocument(t)
			tc.mutate(doc)
			_, err = env.definitions.Save(context.Background(), def.ID, teacherID, doc.Criteria, tc.draft)
			var verrs rubric.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Contains(t, verrs, tc.wantKey)
			assert.Equal(t, int64(0), countRows(t, env.db, &model.Criterion{}))
		})
	}
}

func TestDefinitionService_SaveDraft(t *testing.T) {
	env := newTestEnv(t)
	area := env.area(t, "submissions")
	def, err := env.definitions.CreateDefinition(area.ID, teacherID, CreateDefinitionRequest{Name: "Essay"})
	require.NoError(t, err)

	doc := rubric.NewDocument(rubric.ModeCreate, nil)
	doc.AddCriterion("")
	res, err := env.definitions.Save(context.Background(), def.ID, teacherID, doc.Criteria, true)
	require.NoError(t, err)
	assert.Equal(t, model.DefinitionDraft, res.Status)

	// 草稿内容不完整，不能直接进入 READY
	err = env.definitions.SetStatus(context.Background(), def.ID, teacherID, model.DefinitionReady)
	var verrs rubric.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

// TestDefinitionService_SaveSeverity 修改已保存且已评分的定义，检查严重程度与重新评分标记
func TestDefinitionService_SaveSeverity(t *testing.T) {
	testCases := []struct {
		name         string
		mutate       func(t *testing.T, doc *rubric.Document)
		wantSeverity rubric.Severity
		wantStatus   model.InstanceStatus
	}{
		{
			name:         "无修改",
			mutate:       func(t *testing.T, doc *rubric.Document) {},
			wantSeverity: rubric.SeverityNone,
			wantStatus:   model.InstanceActive,
		},
		{
			name: "只修改描述项文字",
			mutate: func(t *testing.T, doc *rubric.Document) {
				c := doc.Criteria[0]
				l := c.Levels[1]
				require.NoError(t, doc.EditDescriptor(c.ID, l.ID, l.Descriptors[0].ID, "has a clear intro"))
			},
			wantSeverity: rubric.SeverityText,
			wantStatus:   model.InstanceNeedUpdate,
		},
		{
			name: "只改分数写法",
			mutate: func(t *testing.T, doc *rubric.Document) {
				c := doc.Criteria[0]
				require.NoError(t, doc.EditMark(c.ID, c.Levels[1].ID, "1/10"))
			},
			wantSeverity: rubric.SeverityNone,
			wantStatus:   model.InstanceActive,
		},
		{
			name: "修改分数区间",
			mutate: func(t *testing.T, doc *rubric.Document) {
				c := doc.Criteria[0]
				require.NoError(t, doc.EditMark(c.ID, c.Levels[1].ID, "1-8"))
			},
			wantSeverity: rubric.SeverityScore,
			wantStatus:   model.InstanceNeedUpdate,
		},
		{
			name: "删除等级",
			mutate: func(t *testing.T, doc *rubric.Document) {
				c := doc.Criteria[1]
				require.NoError(t, doc.DeleteLevel(c.ID, c.Levels[0].ID))
			},
			wantSeverity: rubric.SeverityLevels,
			wantStatus:   model.InstanceNeedUpdate,
		},
		{
			name: "删除评价标准",
			mutate: func(t *testing.T, doc *rubric.Document) {
				require.NoError(t, doc.RemoveCriterion(doc.Criteria[1].ID))
			},
			wantSeverity: rubric.SeverityCriterionRemoved,
			wantStatus:   model.InstanceNeedUpdate,
		},
		{
			name: "新增评价标准",
			mutate: func(t *testing.T, doc *rubric.Document) {
				c := doc.AddCriterion("Grammar")
				l, err := doc.AddLevel(c.ID, "0-3", "")
				require.NoError(t, err)
				_, err = doc.AddDescriptor(c.ID, l.ID, "few errors")
				require.NoError(t, err)
			},
			wantSeverity: rubric.SeverityCriterionAdded,
			wantStatus:   model.InstanceNeedUpdate,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			def, tree := env.seedDefinition(t, model.DefinitionOptions{})
			graded := env.grade(t, def.ID, raterID, tree, [2]float64{5, 10})

			loaded, err := env.definitions.LoadTree(env.db, def.ID)
			require.NoError(t, err)
			doc := rubric.NewDocument(rubric.ModeEdit, loaded)
			tc.mutate(t, doc)

			res, err := env.definitions.Save(ctx, def.ID, teacherID, doc.Criteria, false)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSeverity, res.Severity)

			inst, err := env.grading.InstanceRepo.FindByID(graded.Instance.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, inst.Status)
			if tc.wantStatus == model.InstanceNeedUpdate {
				assert.Equal(t, int64(1), res.Flagged)
			}
		})
	}
}

func TestDefinitionService_DeleteCriterionCascades(t *testing.T) {
	env := newTestEnv(t)
	def, _ := env.seedDefinition(t, model.DefinitionOptions{})

	loaded, err := env.definitions.LoadTree(env.db, def.ID)
	require.NoError(t, err)
	doc := rubric.NewDocument(rubric.ModeEdit, loaded)
	require.NoError(t, doc.RemoveCriterion(doc.Criteria[0].ID))

	res, err := env.definitions.Save(context.Background(), def.ID, teacherID, doc.Criteria, false)
	require.NoError(t, err)
	assert.Len(t, res.Criteria, 1)
	assert.Equal(t, int64(1), countRows(t, env.db, &model.Criterion{}))
	assert.Equal(t, int64(2), countRows(t, env.db, &model.Level{}))
	assert.Equal(t, int64(2), countRows(t, env.db, &model.Descriptor{}))
}

// 提交中缺失的已保存节点不会被删除
func TestDefinitionService_AbsentNodesKept(t *testing.T) {
	env := newTestEnv(t)
	def, tree := env.seedDefinition(t, model.DefinitionOptions{})

	res, err := env.definitions.Save(context.Background(), def.ID, teacherID, tree[:1], false)
	require.NoError(t, err)
	assert.Equal(t, rubric.SeverityNone, res.Severity)
	assert.Equal(t, int64(2), countRows(t, env.db, &model.Criterion{}))
}

func TestDefinitionService_SaveRollsBack(t *testing.T) {
	env := newTestEnv(t)
	def, tree := env.seedDefinition(t, model.DefinitionOptions{})

	doc := rubric.NewDocument(rubric.ModeEdit, tree)
	c := doc.AddCriterion("Grammar")
	l, err := doc.AddLevel(c.ID, "0-3", "")
	require.NoError(t, err)
	_, err = doc.AddDescriptor(c.ID, l.ID, "few errors")
	require.NoError(t, err)
	// 一个不属于本定义的已保存 ID
	ghost := tree[1].Clone()
	ghost.ID, ghost.CID = "999", "999"
	ghost.Status = rubric.StatusUpdate
	doc.Criteria = append(doc.Criteria, ghost)

	_, err = env.definitions.Save(context.Background(), def.ID, teacherID, doc.Criteria, false)
	assert.ErrorIs(t, err, rubric.ErrCriterionNotFound)
	assert.Equal(t, int64(2), countRows(t, env.db, &model.Criterion{}))
}

func TestDefinitionService_CopyDefinition(t *testing.T) {
	env := newTestEnv(t)
	src, tree := env.seedDefinition(t, model.DefinitionOptions{ShowScoreStudent: true})
	target := env.area(t, "other")

	res, err := env.definitions.CopyDefinition(context.Background(), src.ID, teacherID, CopyDefinitionRequest{AreaID: target.ID})
	require.NoError(t, err)
	assert.Equal(t, model.DefinitionDraft, res.Status)
	assert.NotEqual(t, src.ID, res.DefinitionID)

	copied, err := env.definitions.DefinitionRepo.FindByID(res.DefinitionID)
	require.NoError(t, err)
	assert.Equal(t, src.ID, copied.CopiedFromID)
	assert.Equal(t, target.ID, copied.AreaID)
	assert.NotNil(t, copied.TimeCopied)
	assert.True(t, copied.GetOptions().ShowScoreStudent)

	copyTree, err := env.definitions.LoadTree(env.db, res.DefinitionID)
	require.NoError(t, err)
	require.Len(t, copyTree, len(tree))
	for i := range tree {
		assert.NotEqual(t, tree[i].ID, copyTree[i].ID)
		assert.Equal(t, tree[i].Description, copyTree[i].Description)
		assert.Len(t, copyTree[i].Levels, len(tree[i].Levels))
	}
}

func TestDefinitionService_GetDefinitionCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	def, _ := env.seedDefinition(t, model.DefinitionOptions{})

	view, err := env.definitions.GetDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, rubric.ScoreBounds{MinTotal: 0, MaxTotal: 20}, view.Bounds)
	assert.True(t, env.mr.Exists(definitionCacheKey(def.ID)))

	require.NoError(t, env.definitions.SetStatus(ctx, def.ID, teacherID, model.DefinitionDraft))
	assert.False(t, env.mr.Exists(definitionCacheKey(def.ID)))

	_, err = env.definitions.GetDefinition(ctx, 4040)
	assert.ErrorIs(t, err, util.ErrDefinitionNotFound)
}

func TestDefinitionService_CreateAreaIdempotent(t *testing.T) {
	env := newTestEnv(t)
	a := env.area(t, "submissions")
	b := env.area(t, "submissions")
	assert.Equal(t, a.ID, b.ID)
	assert.True(t, strings.HasPrefix(a.Component, "mod_"))
}
