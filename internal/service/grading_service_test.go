package service

import (
	"context"
	"testing"

	"frubric_backend/internal/model"
	"frubric_backend/internal/rubric"
	"frubric_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradingService_Fill(t *testing.T) {
	testCases := []struct {
		name      string
		opts      model.DefinitionOptions
		scores    [2]float64
		wantTotal float64
		wantGrade float64
	}{
		{
			// 全部选零分等级时锁定为区域最低成绩
			name:      "锁定零分 全零",
			scores:    [2]float64{0, 0},
			wantTotal: 0,
			wantGrade: 40,
		},
		{
			name:      "锁定零分",
			scores:    [2]float64{5, 10},
			wantTotal: 15,
			wantGrade: 75,
		},
		{
			name:      "锁定零分 低于最低成绩",
			scores:    [2]float64{1, 5},
			wantTotal: 6,
			wantGrade: 40,
		},
		{
			name:      "线性映射",
			opts:      model.DefinitionOptions{LockZeroPoints: ptr(false)},
			scores:    [2]float64{5, 10},
			wantTotal: 15,
			wantGrade: 85,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			def, tree := env.seedDefinition(t, tc.opts)

			view := env.grade(t, def.ID, raterID, tree, tc.scores)
			assert.Equal(t, tc.wantTotal, view.Total)
			require.NotNil(t, view.Grade)
			assert.Equal(t, tc.wantGrade, *view.Grade)
			assert.Equal(t, "ACTIVE", view.Status)
			assert.Len(t, view.Fillings, 2)
		})
	}
}

func TestGradingService_FillArchivesPrevious(t *testing.T) {
	env := newTestEnv(t)
	def, tree := env.seedDefinition(t, model.DefinitionOptions{})

	first := env.grade(t, def.ID, raterID, tree, [2]float64{5, 10})
	second := env.grade(t, def.ID, raterID+1, tree, [2]float64{10, 10})

	inst, err := env.grading.InstanceRepo.FindByID(first.Instance.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InstanceArchive, inst.Status)

	current, err := env.grading.InstanceRepo.FindCurrentByItem(def.ID, itemID)
	require.NoError(t, err)
	assert.Equal(t, second.Instance.ID, current.ID)

	// 归档实例不能再提交
	_, err = env.grading.Fill(context.Background(), first.Instance.ID, raterID, FillRequest{})
	assert.ErrorIs(t, err, util.ErrInstanceNotEditable)
}

func TestGradingService_CreateInstanceReusesIncomplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	def, _ := env.seedDefinition(t, model.DefinitionOptions{})

	a, err := env.grading.CreateInstance(ctx, def.ID, raterID, CreateInstanceRequest{ItemID: itemID})
	require.NoError(t, err)
	b, err := env.grading.CreateInstance(ctx, def.ID, raterID, CreateInstanceRequest{ItemID: itemID})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, model.InstanceIncomplete, b.Status)
}

func TestGradingService_CreateInstanceNotReady(t *testing.T) {
	env := newTestEnv(t)
	area := env.area(t, "submissions")
	def, err := env.definitions.CreateDefinition(area.ID, teacherID, CreateDefinitionRequest{Name: "Essay"})
	require.NoError(t, err)

	_, err = env.grading.CreateInstance(context.Background(), def.ID, raterID, CreateInstanceRequest{ItemID: itemID})
	assert.ErrorIs(t, err, util.ErrDefinitionNotReady)
}

func TestGradingService_FillErrors(t *testing.T) {
	testCases := []struct {
		name    string
		rater   uint
		reqs    func(t *testing.T, tree []*rubric.Criterion) []FillingRequest
		wantErr error
	}{
		{
			name:  "分数超出等级区间",
			rater: raterID,
			reqs: func(t *testing.T, tree []*rubric.Criterion) []FillingRequest {
				return []FillingRequest{
					{CriterionID: criterionID(t, tree[0]), LevelID: levelID(t, tree[0], "1-10"), LevelScore: ptr(11.0)},
					{CriterionID: criterionID(t, tree[1]), LevelID: levelID(t, tree[1], "5-10"), LevelScore: ptr(5.0)},
				}
			},
			wantErr: util.ErrLevelScoreOutOfRange,
		},
		{
			name:  "缺少评价标准",
			rater: raterID,
			reqs: func(t *testing.T, tree []*rubric.Criterion) []FillingRequest {
				return []FillingRequest{
					{CriterionID: criterionID(t, tree[0]), LevelID: levelID(t, tree[0], "1-10")},
				}
			},
			wantErr: util.ErrMissingFilling,
		},
		{
			name:  "等级不属于评价标准",
			rater: raterID,
			reqs: func(t *testing.T, tree []*rubric.Criterion) []FillingRequest {
				return []FillingRequest{
					{CriterionID: criterionID(t, tree[0]), LevelID: levelID(t, tree[1], "5-10")},
					{CriterionID: criterionID(t, tree[1]), LevelID: levelID(t, tree[1], "5-10")},
				}
			},
			wantErr: rubric.ErrLevelNotFound,
		},
		{
			name:  "非评分人",
			rater: raterID + 1,
			reqs: func(t *testing.T, tree []*rubric.Criterion) []FillingRequest {
				return nil
			},
			wantErr: util.ErrPermissionDenied,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			def, tree := env.seedDefinition(t, model.DefinitionOptions{})
			inst, err := env.grading.CreateInstance(ctx, def.ID, raterID, CreateInstanceRequest{ItemID: itemID})
			require.NoError(t, err)

			_, err = env.grading.Fill(ctx, inst.ID, tc.rater, FillRequest{Criteria: tc.reqs(t, tree)})
			assert.ErrorIs(t, err, tc.wantErr)

			stored, err := env.grading.InstanceRepo.FindByID(inst.ID)
			require.NoError(t, err)
			assert.Equal(t, model.InstanceIncomplete, stored.Status)
			assert.Nil(t, stored.RawGrade)
		})
	}
}

func TestGradingService_SuggestedScore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	def, tree := env.seedDefinition(t, model.DefinitionOptions{})
	inst, err := env.grading.CreateInstance(ctx, def.ID, raterID, CreateInstanceRequest{ItemID: itemID})
	require.NoError(t, err)

	good := tree[0].FindLevel(rubric.PersistedID(levelID(t, tree[0], "1-10")))
	require.NotNil(t, good)
	intro, _ := good.Descriptors[0].ID.Uint()

	view, err := env.grading.Fill(ctx, inst.ID, raterID, FillRequest{Criteria: []FillingRequest{
		{CriterionID: criterionID(t, tree[0]), LevelID: levelID(t, tree[0], "1-10"), Checked: []uint{intro}},
		{CriterionID: criterionID(t, tree[1]), LevelID: levelID(t, tree[1], "0")},
	}})
	require.NoError(t, err)
	// 勾选 1/2 描述项：1 + (10-1)/2
	require.NotNil(t, view.Fillings[0].LevelScore)
	assert.Equal(t, 5.5, *view.Fillings[0].LevelScore)
	require.NotNil(t, view.Fillings[1].LevelScore)
	assert.Equal(t, float64(0), *view.Fillings[1].LevelScore)

	frozen, err := rubric.DecodeLevel(view.Fillings[0].LevelJSON)
	require.NoError(t, err)
	assert.True(t, frozen.Descriptors[0].Checked)
	assert.False(t, frozen.Descriptors[1].Checked)
}

func TestGradingService_GradeForItem(t *testing.T) {
	testCases := []struct {
		name        string
		opts        model.DefinitionOptions
		wantScore   bool
		wantRemark  bool
		wantDefTree bool
	}{
		{
			name: "默认隐藏",
		},
		{
			name:        "全部展示",
			opts:        model.DefinitionOptions{ShowScoreStudent: true, EnableRemarks: true, ShowRemarksStudent: true, AlwaysShowDefinition: true},
			wantScore:   true,
			wantRemark:  true,
			wantDefTree: true,
		},
		{
			name:      "关闭评语时不展示评语",
			opts:      model.DefinitionOptions{ShowScoreStudent: true, ShowRemarksStudent: true},
			wantScore: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			def, tree := env.seedDefinition(t, tc.opts)
			env.grade(t, def.ID, raterID, tree, [2]float64{5, 10})

			view, err := env.grading.GradeForItem(context.Background(), def.ID, itemID)
			require.NoError(t, err)
			require.NotNil(t, view.Grade)
			assert.Equal(t, float64(75), *view.Grade)
			require.Len(t, view.Fillings, 2)
			assert.NotNil(t, view.Fillings[0].Level)
			assert.Equal(t, tc.wantScore, view.Fillings[0].LevelScore != nil)
			assert.Equal(t, tc.wantRemark, view.Fillings[0].Remark != "")
			assert.Equal(t, tc.wantDefTree, view.Definition != nil)
		})
	}
}

func TestGradingService_GradeForItemNeedsUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	def, tree := env.seedDefinition(t, model.DefinitionOptions{})
	env.grade(t, def.ID, raterID, tree, [2]float64{5, 10})

	loaded, err := env.definitions.LoadTree(env.db, def.ID)
	require.NoError(t, err)
	doc := rubric.NewDocument(rubric.ModeEdit, loaded)
	require.NoError(t, doc.EditDescription(doc.Criteria[0].ID, "Overall structure"))
	_, err = env.definitions.Save(ctx, def.ID, teacherID, doc.Criteria, false)
	require.NoError(t, err)

	view, err := env.grading.GradeForItem(ctx, def.ID, itemID)
	require.NoError(t, err)
	assert.True(t, view.NeedsUpdate)

	empty, err := env.grading.GradeForItem(ctx, def.ID, itemID+1)
	require.NoError(t, err)
	assert.Nil(t, empty.Grade)
	assert.Empty(t, empty.Fillings)
}

func TestGradingService_FillAreaDecimals(t *testing.T) {
	testCases := []struct {
		name      string
		decimals  *int
		wantGrade float64
	}{
		{
			// 区域未设置时使用配置默认的两位小数
			name:      "未设置小数位",
			wantGrade: 66.25,
		},
		{
			name:      "区域设置取整",
			decimals:  ptr(0),
			wantGrade: 66,
		},
		{
			name:      "区域设置三位小数",
			decimals:  ptr(3),
			wantGrade: 66.25,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			area, err := env.definitions.CreateArea(CreateAreaRequest{
				Component:     "mod_assign",
				AreaName:      "submissions",
				ContextID:     3,
				MinGrade:      40,
				MaxGrade:      100,
				GradeDecimals: tc.decimals,
			})
			require.NoError(t, err)
			def, err := env.definitions.CreateDefinition(area.ID, teacherID, CreateDefinitionRequest{Name: "Essay"})
			require.NoError(t, err)
			saved, err := env.definitions.Save(context.Background(), def.ID, teacherID, sampleDocument(t).Criteria, false)
			require.NoError(t, err)

			view := env.grade(t, def.ID, raterID, saved.Criteria, [2]float64{5, 8.25})
			assert.Equal(t, 13.25, view.Total)
			require.NotNil(t, view.Grade)
			assert.Equal(t, tc.wantGrade, *view.Grade)
		})
	}
}

func TestGradingService_GetInstanceScores(t *testing.T) {
	testCases := []struct {
		name      string
		opts      model.DefinitionOptions
		wantScore bool
	}{
		{
			name: "默认不向评分人展示等级分数",
		},
		{
			name:      "展示等级分数",
			opts:      model.DefinitionOptions{ShowScoreTeacher: true},
			wantScore: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			def, tree := env.seedDefinition(t, tc.opts)
			filled := env.grade(t, def.ID, raterID, tree, [2]float64{5, 10})

			view, err := env.grading.GetInstance(context.Background(), filled.Instance.ID)
			require.NoError(t, err)
			require.Len(t, view.Fillings, 2)
			assert.Equal(t, float64(15), view.Total)
			for _, f := range view.Fillings {
				assert.Equal(t, tc.wantScore, f.LevelScore != nil)
				assert.NotEmpty(t, f.LevelJSON)
			}
			if tc.wantScore {
				assert.Equal(t, float64(5), *view.Fillings[0].LevelScore)
			}
		})
	}
}

func TestGradingService_GradeForItemHiddenCriterion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	def, tree := env.seedDefinition(t, model.DefinitionOptions{ShowScoreStudent: true, AlwaysShowDefinition: true})

	doc := rubric.NewDocument(rubric.ModeEdit, tree)
	require.NoError(t, doc.SetVisibility(tree[1].ID, false))
	saved, err := env.definitions.Save(ctx, def.ID, teacherID, doc.Criteria, false)
	require.NoError(t, err)
	require.Len(t, saved.Criteria, 2)
	assert.False(t, saved.Criteria[1].Visibility)

	// 隐藏的评价标准仍计入总分
	filled := env.grade(t, def.ID, raterID, saved.Criteria, [2]float64{5, 10})
	assert.Equal(t, float64(15), filled.Total)

	view, err := env.grading.GradeForItem(ctx, def.ID, itemID)
	require.NoError(t, err)
	require.Len(t, view.Fillings, 1)
	assert.Equal(t, criterionID(t, saved.Criteria[0]), view.Fillings[0].CriterionID)
	require.Len(t, view.Definition, 1)
	assert.Equal(t, "Structure", view.Definition[0].Description)
	assert.Equal(t, float64(5), view.Definition[0].SumScore)

	// 缓存中的定义不带评分结果
	def2, err := env.definitions.GetDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Zero(t, def2.Criteria[0].SumScore)
}
