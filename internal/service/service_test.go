package service

import (
	"context"
	"testing"

	"frubric_backend/internal/config"
	"frubric_backend/internal/model"
	"frubric_backend/internal/repository"
	"frubric_backend/internal/rubric"
	"frubric_backend/pkg/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	teacherID = uint(7)
	raterID   = uint(8)
	itemID    = uint(501)
)

type testEnv struct {
	db          *gorm.DB
	mr          *miniredis.Miniredis
	redis       *redis.Client
	settings    *GradingSettings
	definitions *DefinitionService
	editor      *EditorService
	grading     *GradingService
	backup      *BackupService
	outcomes    *OutcomeService
	gradebook   *GradebookService
}

// newTestEnv 单连接的内存 SQLite，保证事务与非事务查询看到同一个库
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	settings := NewGradingSettings(config.GradingConfig{
		DefaultPolicy:   model.PolicyLockedZero,
		DefaultDecimals: 2,
		CacheTTLMinutes: 10,
	})
	areaRepo := repository.NewAreaRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)
	definitions := NewDefinitionService(db, rdb, areaRepo,
		repository.NewDefinitionRepository(db),
		repository.NewCriterionRepository(db),
		NewDefinitionReconciler(), settings)

	return &testEnv{
		db:          db,
		mr:          mr,
		redis:       rdb,
		settings:    settings,
		definitions: definitions,
		editor:      NewEditorService(rdb, definitions, &config.EditorConfig{SessionTTLMinutes: 30}),
		grading:     NewGradingService(db, instanceRepo, definitions, settings),
		backup:      NewBackupService(db, definitions, instanceRepo, &LocalArchiveStore{Root: t.TempDir()}),
		outcomes:    NewOutcomeService(repository.NewOutcomeRepository(db), instanceRepo, definitions),
		gradebook:   NewGradebookService(areaRepo, repository.NewGradeCategoryRepository(db)),
	}
}

func (e *testEnv) area(t *testing.T, name string) *model.GradingArea {
	t.Helper()
	area, err := e.definitions.CreateArea(CreateAreaRequest{
		Component: "mod_assign",
		AreaName:  name,
		ContextID: 3,
		MinGrade:  40,
		MaxGrade:  100,
	})
	require.NoError(t, err)
	return area
}

// sampleDocument 两个评价标准，总分区间 [0, 20]
//
//	Structure: "0" missing | "1-10" intro, conclusion
//	Style:     "0" poor    | "5-10" good
func sampleDocument(t *testing.T) *rubric.Document {
	t.Helper()
	doc := rubric.NewDocument(rubric.ModeCreate, nil)

	c1 := doc.AddCriterion("Structure")
	l, err := doc.AddLevel(c1.ID, "0", "missing")
	require.NoError(t, err)
	_, err = doc.AddDescriptor(c1.ID, l.ID, "no structure")
	require.NoError(t, err)
	l, err = doc.AddLevel(c1.ID, "1-10", "present")
	require.NoError(t, err)
	_, err = doc.AddDescriptor(c1.ID, l.ID, "has intro")
	require.NoError(t, err)
	_, err = doc.AddDescriptor(c1.ID, l.ID, "has conclusion")
	require.NoError(t, err)

	c2 := doc.AddCriterion("Style")
	l, err = doc.AddLevel(c2.ID, "0", "poor")
	require.NoError(t, err)
	_, err = doc.AddDescriptor(c2.ID, l.ID, "hard to read")
	require.NoError(t, err)
	l, err = doc.AddLevel(c2.ID, "5-10", "good")
	require.NoError(t, err)
	_, err = doc.AddDescriptor(c2.ID, l.ID, "reads well")
	require.NoError(t, err)
	return doc
}

// seedDefinition 创建区域和 READY 定义，返回保存后的评分树
func (e *testEnv) seedDefinition(t *testing.T, opts model.DefinitionOptions) (*model.GradingDefinition, []*rubric.Criterion) {
	t.Helper()
	area := e.area(t, "submissions")
	def, err := e.definitions.CreateDefinition(area.ID, teacherID, CreateDefinitionRequest{Name: "Essay", Options: opts})
	require.NoError(t, err)
	saved, err := e.definitions.Save(context.Background(), def.ID, teacherID, sampleDocument(t).Criteria, false)
	require.NoError(t, err)
	return def, saved.Criteria
}

// levelID 按分数字符串查找已保存等级的 ID
func levelID(t *testing.T, c *rubric.Criterion, score string) uint {
	t.Helper()
	for _, l := range c.Levels {
		if l.Score == score {
			id, ok := l.ID.Uint()
			require.True(t, ok)
			return id
		}
	}
	t.Fatalf("criterion %s has no level %q", c.ID, score)
	return 0
}

func criterionID(t *testing.T, c *rubric.Criterion) uint {
	t.Helper()
	id, ok := c.ID.Uint()
	require.True(t, ok)
	return id
}

func ptr[T any](v T) *T {
	return &v
}

// grade 由评分人对 itemID 完成一次评分
func (e *testEnv) grade(t *testing.T, definitionID, rater uint, tree []*rubric.Criterion, scores [2]float64) *InstanceView {
	t.Helper()
	ctx := context.Background()
	inst, err := e.grading.CreateInstance(ctx, definitionID, rater, CreateInstanceRequest{ItemID: itemID})
	require.NoError(t, err)

	levels := [2]string{"1-10", "5-10"}
	reqs := make([]FillingRequest, 0, 2)
	for i, c := range tree {
		score := levels[i]
		if scores[i] == 0 {
			score = "0"
		}
		reqs = append(reqs, FillingRequest{
			CriterionID: criterionID(t, c),
			LevelID:     levelID(t, c, score),
			LevelScore:  ptr(scores[i]),
			Remark:      "ok",
		})
	}
	view, err := e.grading.Fill(ctx, inst.ID, rater, FillRequest{Criteria: reqs, Feedback: "done"})
	require.NoError(t, err)
	return view
}
