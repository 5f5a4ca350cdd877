package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"frubric_backend/internal/model"
	"frubric_backend/internal/repository"
	"frubric_backend/internal/rubric"
	"frubric_backend/internal/util"
	"frubric_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type DefinitionService struct {
	DB             *gorm.DB
	Redis          *redis.Client
	AreaRepo       *repository.AreaRepository
	DefinitionRepo *repository.DefinitionRepository
	CriterionRepo  *repository.CriterionRepository
	Reconciler     *DefinitionReconciler
	Settings       *GradingSettings
}

func NewDefinitionService(
	db *gorm.DB,
	rdb *redis.Client,
	areaRepo *repository.AreaRepository,
	definitionRepo *repository.DefinitionRepository,
	criterionRepo *repository.CriterionRepository,
	reconciler *DefinitionReconciler,
	settings *GradingSettings,
) *DefinitionService {
	return &DefinitionService{
		DB:             db,
		Redis:          rdb,
		AreaRepo:       areaRepo,
		DefinitionRepo: definitionRepo,
		CriterionRepo:  criterionRepo,
		Reconciler:     reconciler,
		Settings:       settings,
	}
}

type CreateAreaRequest struct {
	Component     string  `json:"component" binding:"required"`
	AreaName      string  `json:"areaName" binding:"required"`
	ContextID     uint    `json:"contextId" binding:"required"`
	MinGrade      float64 `json:"minGrade"`
	MaxGrade      float64 `json:"maxGrade" binding:"required,gtfield=MinGrade"`
	GradeDecimals *int    `json:"gradeDecimals" binding:"omitempty,min=0,max=5"`
}

type CreateDefinitionRequest struct {
	Name        string                  `json:"name" binding:"required"`
	Description string                  `json:"description"`
	Options     model.DefinitionOptions `json:"options"`
}

type CopyDefinitionRequest struct {
	AreaID uint   `json:"areaId" binding:"required"`
	Name   string `json:"name"`
}

// DefinitionView 定义及其评分树，同时作为缓存内容
type DefinitionView struct {
	Definition *model.GradingDefinition `json:"definition"`
	Criteria   []*rubric.Criterion      `json:"criteria"`
	Bounds     rubric.ScoreBounds       `json:"bounds"`
}

// SaveResult 保存结果，Criteria 为已替换真实 ID 的评分树
type SaveResult struct {
	*ReconcileResult
	DefinitionID uint                   `json:"definitionId"`
	Status       model.DefinitionStatus `json:"status"`
}

func definitionCacheKey(id uint) string {
	return fmt.Sprintf("frubric:definition:%d", id)
}

func (s *DefinitionService) CreateArea(req CreateAreaRequest) (*model.GradingArea, error) {
	area := &model.GradingArea{
		Component:     req.Component,
		AreaName:      req.AreaName,
		ContextID:     req.ContextID,
		MinGrade:      req.MinGrade,
		MaxGrade:      req.MaxGrade,
		GradeDecimals: req.GradeDecimals,
	}
	return s.AreaRepo.FindOrCreate(area)
}

func (s *DefinitionService) GetArea(id uint) (*model.GradingArea, error) {
	area, err := s.AreaRepo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAreaNotFound
	}
	return area, err
}

func (s *DefinitionService) CreateDefinition(areaID, userID uint, req CreateDefinitionRequest) (*model.GradingDefinition, error) {
	if _, err := s.GetArea(areaID); err != nil {
		return nil, err
	}
	def := &model.GradingDefinition{
		AreaID:       areaID,
		Name:         req.Name,
		Description:  req.Description,
		Status:       model.DefinitionDraft,
		UserCreated:  userID,
		UserModified: userID,
	}
	if err := def.SetOptions(req.Options); err != nil {
		return nil, err
	}
	if err := s.DefinitionRepo.Create(def); err != nil {
		return nil, errors.Wrap(err, "create definition")
	}
	return def, nil
}

func (s *DefinitionService) ListByArea(areaID uint) ([]model.GradingDefinition, error) {
	return s.DefinitionRepo.FindByArea(areaID)
}

func (s *DefinitionService) findDefinition(repo *repository.DefinitionRepository, id uint) (*model.GradingDefinition, error) {
	def, err := repo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrDefinitionNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find definition %d", id)
	}
	return def, nil
}

// LoadTree 由行数据构建评分树；db 可以是事务
func (s *DefinitionService) LoadTree(db *gorm.DB, definitionID uint) ([]*rubric.Criterion, error) {
	criteria, levels, descriptors, err := s.CriterionRepo.WithTx(db).LoadRows(definitionID)
	if err != nil {
		return nil, errors.Wrapf(err, "load rows of definition %d", definitionID)
	}
	return rubric.BuildTree(criteria, levels, descriptors)
}

// GetDefinition 优先读取 Redis 缓存
func (s *DefinitionService) GetDefinition(ctx context.Context, id uint) (*DefinitionView, error) {
	if view, ok := s.cached(ctx, id); ok {
		return view, nil
	}
	def, err := s.findDefinition(s.DefinitionRepo, id)
	if err != nil {
		return nil, err
	}
	tree, err := s.LoadTree(s.DB, id)
	if err != nil {
		return nil, err
	}
	bounds, err := rubric.Bounds(tree)
	if err != nil {
		return nil, err
	}
	view := &DefinitionView{Definition: def, Criteria: tree, Bounds: bounds}
	s.cache(ctx, view)
	return view, nil
}

func (s *DefinitionService) cached(ctx context.Context, id uint) (*DefinitionView, bool) {
	if s.Redis == nil {
		return nil, false
	}
	raw, err := s.Redis.Get(ctx, definitionCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Log.Warn("Definition cache read failed", zap.Uint("definitionId", id), zap.Error(err))
		}
		return nil, false
	}
	var view DefinitionView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, false
	}
	return &view, true
}

func (s *DefinitionService) cache(ctx context.Context, view *DefinitionView) {
	if s.Redis == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	ttl := s.Settings.Get().CacheTTL()
	if err := s.Redis.Set(ctx, definitionCacheKey(view.Definition.ID), raw, ttl).Err(); err != nil {
		logger.Log.Warn("Definition cache write failed", zap.Uint("definitionId", view.Definition.ID), zap.Error(err))
	}
}

// Invalidate 删除定义缓存
func (s *DefinitionService) Invalidate(ctx context.Context, id uint) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(ctx, definitionCacheKey(id)).Err(); err != nil {
		logger.Log.Warn("Definition cache invalidate failed", zap.Uint("definitionId", id), zap.Error(err))
	}
}

func (s *DefinitionService) validateOptions(def *model.GradingDefinition, draft bool) rubric.ValidateOptions {
	return rubric.ValidateOptions{
		Draft:           draft,
		RequireOutcomes: def.GetOptions().RequireOutcomes || s.Settings.Get().RequireOutcomes,
	}
}

// Save 校验并保存编辑器提交的评分树。校验失败返回 rubric.ValidationErrors；
// 非草稿保存成功后定义进入 READY。
func (s *DefinitionService) Save(ctx context.Context, definitionID, userID uint, criteria []*rubric.Criterion, draft bool) (*SaveResult, error) {
	def, err := s.findDefinition(s.DefinitionRepo, definitionID)
	if err != nil {
		return nil, err
	}
	if errs := rubric.Validate(criteria, s.validateOptions(def, draft)); !errs.Empty() {
		return nil, errs
	}

	status := model.DefinitionReady
	if draft {
		status = model.DefinitionDraft
	}

	var res *ReconcileResult
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.Reconciler.Reconcile(ctx, tx, definitionID, criteria)
		if err != nil {
			return err
		}
		return s.DefinitionRepo.WithTx(tx).UpdateStatus(definitionID, status, userID)
	})
	if err != nil {
		logger.Log.Error("Definition save failed",
			zap.Uint("definitionId", definitionID), zap.Error(err))
		return nil, err
	}
	s.Invalidate(ctx, definitionID)

	logger.Log.Info("Definition saved",
		zap.Uint("definitionId", definitionID),
		zap.Uint("userId", userID),
		zap.Bool("draft", draft),
		zap.Int("severity", int(res.Severity)),
		zap.Int64("flagged", res.Flagged))
	return &SaveResult{ReconcileResult: res, DefinitionID: definitionID, Status: status}, nil
}

// SetStatus 切换 DRAFT/READY；进入 READY 前对已保存的评分树做完整校验
func (s *DefinitionService) SetStatus(ctx context.Context, definitionID, userID uint, status model.DefinitionStatus) error {
	if status != model.DefinitionDraft && status != model.DefinitionReady {
		return fmt.Errorf("unknown definition status %d", status)
	}
	def, err := s.findDefinition(s.DefinitionRepo, definitionID)
	if err != nil {
		return err
	}
	if status == model.DefinitionReady {
		tree, err := s.LoadTree(s.DB, definitionID)
		if err != nil {
			return err
		}
		if errs := rubric.Validate(tree, s.validateOptions(def, false)); !errs.Empty() {
			return errs
		}
	}
	if err := s.DefinitionRepo.UpdateStatus(definitionID, status, userID); err != nil {
		return errors.Wrap(err, "update definition status")
	}
	s.Invalidate(ctx, definitionID)
	return nil
}

// CopyDefinition 将已有定义（模板）复制到另一个评分区域，复制结果为 DRAFT
func (s *DefinitionService) CopyDefinition(ctx context.Context, sourceID, userID uint, req CopyDefinitionRequest) (*SaveResult, error) {
	src, err := s.findDefinition(s.DefinitionRepo, sourceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetArea(req.AreaID); err != nil {
		return nil, err
	}
	tree, err := s.LoadTree(s.DB, sourceID)
	if err != nil {
		return nil, err
	}
	name := req.Name
	if name == "" {
		name = src.Name
	}
	now := time.Now()

	var res *ReconcileResult
	var copyDef *model.GradingDefinition
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		copyDef = &model.GradingDefinition{
			AreaID:       req.AreaID,
			Name:         name,
			Description:  src.Description,
			Status:       model.DefinitionDraft,
			Options:      src.Options,
			CopiedFromID: src.ID,
			UserCreated:  userID,
			UserModified: userID,
			TimeCopied:   &now,
		}
		if err := s.DefinitionRepo.WithTx(tx).Create(copyDef); err != nil {
			return errors.Wrap(err, "create definition copy")
		}
		var err error
		res, err = s.Reconciler.Reconcile(ctx, tx, copyDef.ID, rubric.Detach(tree))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &SaveResult{ReconcileResult: res, DefinitionID: copyDef.ID, Status: copyDef.Status}, nil
}
