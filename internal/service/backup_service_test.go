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

func TestBackupService_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	def, tree := env.seedDefinition(t, model.DefinitionOptions{ShowScoreStudent: true})
	env.grade(t, def.ID, raterID, tree, [2]float64{5, 10})

	backup, err := env.backup.Backup(ctx, def.ID, BackupRequest{IncludeGrades: true})
	require.NoError(t, err)
	assert.Equal(t, 2, backup.Criteria)
	assert.Equal(t, 2, backup.Fillings)
	assert.Contains(t, backup.Location, "file://")

	target := env.area(t, "restored")
	res, err := env.backup.Restore(ctx, target.ID, teacherID, RestoreRequest{Key: backup.Key})
	require.NoError(t, err)
	assert.NotEqual(t, def.ID, res.DefinitionID)
	assert.Equal(t, 1, res.Instances)

	restored, err := env.definitions.DefinitionRepo.FindByID(res.DefinitionID)
	require.NoError(t, err)
	assert.Equal(t, def.ID, restored.CopiedFromID)
	assert.Equal(t, model.DefinitionReady, restored.Status)
	assert.True(t, restored.GetOptions().ShowScoreStudent)

	assert.Equal(t, int64(4), countRows(t, env.db, &model.Criterion{}))
	assert.Equal(t, int64(8), countRows(t, env.db, &model.Level{}))
	assert.Equal(t, int64(10), countRows(t, env.db, &model.Descriptor{}))
	assert.Equal(t, int64(4), countRows(t, env.db, &model.Filling{}))

	// 快照中嵌入的 ID 必须指向新行
	rows, err := env.definitions.CriterionRepo.ListCriteria(res.DefinitionID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		snap, err := rubric.DecodeCriterion(row.CriteriaJSON)
		require.NoError(t, err)
		assert.Equal(t, rubric.PersistedID(row.ID), snap.ID)
		assert.Equal(t, res.DefinitionID, snap.DefinitionID)
		for _, l := range snap.Levels {
			old, _ := l.ID.Uint()
			_, isOld := res.IDMaps.Levels[old]
			assert.False(t, isOld, "level %s still uses a source id", l.ID)
		}
	}

	instances, err := env.grading.InstanceRepo.ListByDefinition(res.DefinitionID)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	fillings, err := env.grading.InstanceRepo.ListFillings(instances[0].ID)
	require.NoError(t, err)
	for _, f := range fillings {
		frozen, err := rubric.DecodeLevel(f.LevelJSON)
		require.NoError(t, err)
		assert.Equal(t, rubric.PersistedID(f.LevelID), frozen.ID)
	}

	tree2, err := env.definitions.LoadTree(env.db, res.DefinitionID)
	require.NoError(t, err)
	bounds, err := rubric.Bounds(tree2)
	require.NoError(t, err)
	assert.Equal(t, rubric.ScoreBounds{MinTotal: 0, MaxTotal: 20}, bounds)
}

// 评分后删除的描述项在恢复的 leveljson 中不能保留源库 ID
func TestBackupService_RestoreDropsDeletedDescriptorIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	def, tree := env.seedDefinition(t, model.DefinitionOptions{})

	structure := tree[0]
	var present *rubric.Level
	for _, l := range structure.Levels {
		if l.Score == "1-10" {
			present = l
		}
	}
	require.NotNil(t, present)
	require.Len(t, present.Descriptors, 2)
	removed, ok := present.Descriptors[0].ID.Uint()
	require.True(t, ok)
	removedText := present.Descriptors[0].Text
	kept, ok := present.Descriptors[1].ID.Uint()
	require.True(t, ok)
	presentID := levelID(t, structure, "1-10")

	inst, err := env.grading.CreateInstance(ctx, def.ID, raterID, CreateInstanceRequest{ItemID: itemID})
	require.NoError(t, err)
	_, err = env.grading.Fill(ctx, inst.ID, raterID, FillRequest{Criteria: []FillingRequest{
		{CriterionID: criterionID(t, structure), LevelID: presentID, LevelScore: ptr(6.0), Checked: []uint{removed, kept}},
		{CriterionID: criterionID(t, tree[1]), LevelID: levelID(t, tree[1], "0"), LevelScore: ptr(0.0)},
	}})
	require.NoError(t, err)

	doc := rubric.NewDocument(rubric.ModeEdit, tree)
	require.NoError(t, doc.DeleteDescriptor(structure.ID, present.ID, rubric.PersistedID(removed)))
	_, err = env.definitions.Save(ctx, def.ID, teacherID, doc.Criteria, true)
	require.NoError(t, err)

	raw, _, err := env.backup.Export(def.ID, true)
	require.NoError(t, err)
	target := env.area(t, "restored")
	res, err := env.backup.Import(ctx, target.ID, teacherID, raw)
	require.NoError(t, err)
	_, mapped := res.IDMaps.Descriptors[removed]
	require.False(t, mapped)

	instances, err := env.grading.InstanceRepo.ListByDefinition(res.DefinitionID)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	fillings, err := env.grading.InstanceRepo.ListFillings(instances[0].ID)
	require.NoError(t, err)

	var frozen *rubric.Level
	for _, f := range fillings {
		if f.LevelID == res.IDMaps.Levels[presentID] {
			frozen, err = rubric.DecodeLevel(f.LevelJSON)
			require.NoError(t, err)
		}
	}
	require.NotNil(t, frozen)
	require.Len(t, frozen.Descriptors, 2)
	for _, d := range frozen.Descriptors {
		assert.True(t, d.Checked, "frozen checked flags survive the restore")
		if d.Text == removedText {
			assert.True(t, d.ID.IsZero(), "deleted descriptor still carries %s", d.ID)
			continue
		}
		assert.Equal(t, rubric.PersistedID(res.IDMaps.Descriptors[kept]), d.ID)
	}
}

func TestBackupService_ExportWithoutGrades(t *testing.T) {
	env := newTestEnv(t)
	def, tree := env.seedDefinition(t, model.DefinitionOptions{})
	env.grade(t, def.ID, raterID, tree, [2]float64{5, 10})

	raw, res, err := env.backup.Export(def.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Fillings)
	assert.Contains(t, string(raw), "<frcriterion id=")
	assert.Contains(t, string(raw), "<frdescriptor id=")
	assert.NotContains(t, string(raw), "<filling>")
}

func TestBackupService_ImportInvalid(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{name: "不是 XML", raw: "not xml"},
		{name: "版本不支持", raw: `<frubric version="9"><name>x</name></frubric>`},
		{
			name: "快照损坏",
			raw: `<frubric version="1"><name>x</name><frcriteria><frcriterion id="1">
				<description>a</description><criteriajson>{broken</criteriajson></frcriterion></frcriteria></frubric>`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			area := env.area(t, "restored")
			_, err := env.backup.Import(context.Background(), area.ID, teacherID, []byte(tc.raw))
			assert.ErrorIs(t, err, util.ErrInvalidBackup)
			assert.Equal(t, int64(0), countRows(t, env.db, &model.GradingDefinition{}))
		})
	}
}

func TestCleanKey(t *testing.T) {
	testCases := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "普通对象名", key: "frubric/1/a.xml", want: "frubric/1/a.xml"},
		{name: "跳出根目录", key: "../../etc/passwd", want: "etc/passwd"},
		{name: "空", key: "", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cleanKey(tc.key)
			if tc.wantErr {
				assert.ErrorIs(t, err, util.ErrInvalidBackup)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
