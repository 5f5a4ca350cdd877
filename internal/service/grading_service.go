package service

import (
	"context"
	"sort"

	"frubric_backend/internal/model"
	"frubric_backend/internal/repository"
	"frubric_backend/internal/rubric"
	"frubric_backend/internal/util"
	"frubric_backend/pkg/logger"
	"frubric_backend/pkg/monitoring"
	"frubric_backend/pkg/tracing"

	"github.com/ecodeclub/ekit/slice"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GradingService struct {
	DB           *gorm.DB
	InstanceRepo *repository.InstanceRepository
	Definitions  *DefinitionService
	Settings     *GradingSettings
}

func NewGradingService(db *gorm.DB, instanceRepo *repository.InstanceRepository, definitions *DefinitionService, settings *GradingSettings) *GradingService {
	return &GradingService{
		DB:           db,
		InstanceRepo: instanceRepo,
		Definitions:  definitions,
		Settings:     settings,
	}
}

type CreateInstanceRequest struct {
	ItemID uint `json:"itemId" binding:"required"`
}

// FillingRequest 一个评价标准的评分：选中的等级、勾选的描述项和可选的分数
type FillingRequest struct {
	CriterionID uint     `json:"criterionId" binding:"required"`
	LevelID     uint     `json:"levelId" binding:"required"`
	LevelScore  *float64 `json:"levelScore" binding:"omitempty,min=0"`
	Checked     []uint   `json:"checked"`
	Remark      string   `json:"remark"`
}

type FillRequest struct {
	Criteria []FillingRequest `json:"criteria" binding:"required,dive"`
	Feedback string           `json:"feedback"`
}

type InstanceView struct {
	Instance *model.GradingInstance `json:"instance"`
	Status   string                 `json:"status"`
	Fillings []InstanceFilling      `json:"fillings"`
	Total    float64                `json:"total"`
	Grade    *float64               `json:"grade,omitempty"`
	Policy   string                 `json:"policy,omitempty"`
}

// InstanceFilling 评分人看到的填写记录；showscoreteacher 关闭时不返回 levelScore
type InstanceFilling struct {
	model.Filling
	LevelScore *float64 `json:"levelScore,omitempty"`
}

func instanceFillings(fillings []model.Filling, showScores bool) []InstanceFilling {
	return slice.Map(fillings, func(_ int, f model.Filling) InstanceFilling {
		res := InstanceFilling{Filling: f}
		if showScores {
			score := f.LevelScore
			res.LevelScore = &score
		}
		return res
	})
}

// StudentFilling 按定义选项过滤后展示给学生的评分
type StudentFilling struct {
	CriterionID uint          `json:"criterionId"`
	Level       *rubric.Level `json:"level"`
	LevelScore  *float64      `json:"levelScore,omitempty"`
	Remark      string        `json:"remark,omitempty"`
}

type StudentGradeView struct {
	ItemID      uint                `json:"itemId"`
	Grade       *float64            `json:"grade,omitempty"`
	NeedsUpdate bool                `json:"needsUpdate"`
	Feedback    string              `json:"feedback,omitempty"`
	Fillings    []StudentFilling    `json:"fillings"`
	Definition  []*rubric.Criterion `json:"definition,omitempty"`
}

func (s *GradingService) findInstance(repo *repository.InstanceRepository, id uint) (*model.GradingInstance, error) {
	inst, err := repo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrInstanceNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find instance %d", id)
	}
	return inst, nil
}

// CreateInstance 为评分对象创建 INCOMPLETE 实例，未完成的实例会被复用
func (s *GradingService) CreateInstance(ctx context.Context, definitionID, raterID uint, req CreateInstanceRequest) (*model.GradingInstance, error) {
	def, err := s.Definitions.findDefinition(s.Definitions.DefinitionRepo, definitionID)
	if err != nil {
		return nil, err
	}
	if def.Status != model.DefinitionReady {
		return nil, util.ErrDefinitionNotReady
	}
	if inst, err := s.InstanceRepo.FindIncomplete(definitionID, raterID, req.ItemID); err == nil {
		return inst, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "find incomplete instance")
	}
	inst := &model.GradingInstance{
		DefinitionID: definitionID,
		RaterID:      raterID,
		ItemID:       req.ItemID,
		Status:       model.InstanceIncomplete,
	}
	if err := s.InstanceRepo.Create(inst); err != nil {
		return nil, errors.Wrap(err, "create instance")
	}
	return inst, nil
}

// buildFillings 将请求与当前评分树对齐：每个评价标准都必须有一个有效等级
func buildFillings(tree []*rubric.Criterion, reqs []FillingRequest) ([]model.Filling, float64, error) {
	byCriterion := make(map[uint]FillingRequest, len(reqs))
	for _, r := range reqs {
		byCriterion[r.CriterionID] = r
	}

	fillings := make([]model.Filling, 0, len(tree))
	var total float64
	for _, c := range tree {
		cid, _ := c.ID.Uint()
		req, ok := byCriterion[cid]
		if !ok {
			return nil, 0, errors.Wrapf(util.ErrMissingFilling, "criterion %d", cid)
		}
		delete(byCriterion, cid)

		level := c.FindLevel(rubric.PersistedID(req.LevelID))
		if level == nil {
			return nil, 0, errors.Wrapf(rubric.ErrLevelNotFound, "level %d of criterion %d", req.LevelID, cid)
		}
		graded := level.Clone()
		checked := make(map[uint]bool, len(req.Checked))
		for _, id := range req.Checked {
			checked[id] = true
		}
		for _, d := range graded.Descriptors {
			id, _ := d.ID.Uint()
			d.Checked = checked[id]
		}

		r, err := graded.Range()
		if err != nil {
			return nil, 0, err
		}
		var score float64
		if req.LevelScore != nil {
			score = *req.LevelScore
			if !r.Contains(score) {
				return nil, 0, errors.Wrapf(util.ErrLevelScoreOutOfRange, "criterion %d: %v not in %s", cid, score, r)
			}
		} else if score, err = rubric.SuggestLevelScore(graded); err != nil {
			return nil, 0, err
		}

		snapshot, err := levelSnapshot(graded)
		if err != nil {
			return nil, 0, err
		}
		fillings = append(fillings, model.Filling{
			CriterionID: cid,
			LevelID:     req.LevelID,
			Remark:      req.Remark,
			LevelScore:  score,
			LevelJSON:   snapshot,
		})
		total += score
	}
	if len(byCriterion) > 0 {
		extra := make([]uint, 0, len(byCriterion))
		for cid := range byCriterion {
			extra = append(extra, cid)
		}
		sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
		return nil, 0, errors.Wrapf(rubric.ErrCriterionNotFound, "criteria %v", extra)
	}
	return fillings, total, nil
}

// gradeFor 按定义选项与区域设置计算最终成绩
func (s *GradingService) gradeFor(def *model.GradingDefinition, area *model.GradingArea, tree []*rubric.Criterion, total float64) (float64, string, error) {
	defaults := s.Settings.Get()
	policy := def.GetOptions().Policy(defaults.DefaultPolicy)
	bounds, err := rubric.Bounds(tree)
	if err != nil {
		return 0, policy, err
	}
	decimals := defaults.DefaultDecimals
	if area.GradeDecimals != nil {
		decimals = *area.GradeDecimals
	}
	grade, err := rubric.CalculateGrade(total, bounds, rubric.GradeRange{
		MinGrade: area.MinGrade,
		MaxGrade: area.MaxGrade,
		Decimals: decimals,
	}, policy)
	return grade, policy, err
}

// Fill 提交评分：实例变为 ACTIVE，同一对象的旧实例归档
func (s *GradingService) Fill(ctx context.Context, instanceID, raterID uint, req FillRequest) (*InstanceView, error) {
	_, span := tracing.Start(ctx, "frubric.fill", attribute.Int("instance.id", int(instanceID)))
	defer span.End()

	var view *InstanceView
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		instances := s.InstanceRepo.WithTx(tx)
		inst, err := s.findInstance(instances, instanceID)
		if err != nil {
			return err
		}
		if inst.RaterID != raterID {
			return util.ErrPermissionDenied
		}
		if inst.Status == model.InstanceArchive {
			return util.ErrInstanceNotEditable
		}
		def, err := s.Definitions.findDefinition(s.Definitions.DefinitionRepo.WithTx(tx), inst.DefinitionID)
		if err != nil {
			return err
		}
		area, err := s.Definitions.AreaRepo.WithTx(tx).FindByID(def.AreaID)
		if err != nil {
			return errors.Wrapf(err, "find area %d", def.AreaID)
		}
		tree, err := s.Definitions.LoadTree(tx, def.ID)
		if err != nil {
			return err
		}

		fillings, total, err := buildFillings(tree, req.Criteria)
		if err != nil {
			return err
		}
		grade, policy, err := s.gradeFor(def, area, tree, total)
		if err != nil {
			return err
		}

		if err := instances.ReplaceFillings(inst.ID, fillings); err != nil {
			return errors.Wrap(err, "store fillings")
		}
		inst.RawGrade = &grade
		inst.Status = model.InstanceActive
		inst.Feedback = req.Feedback
		if err := instances.Update(inst); err != nil {
			return errors.Wrap(err, "update instance")
		}
		if err := instances.ArchiveOthers(inst.DefinitionID, inst.ItemID, inst.ID); err != nil {
			return errors.Wrap(err, "archive previous instances")
		}

		monitoring.GradesComputed.WithLabelValues(policy).Inc()
		view = &InstanceView{
			Instance: inst,
			Status:   inst.Status.String(),
			Fillings: instanceFillings(fillings, true),
			Total:    total,
			Grade:    &grade,
			Policy:   policy,
		}
		return nil
	})
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	logger.Log.Info("Instance graded",
		zap.Uint("instanceId", instanceID),
		zap.Uint("raterId", raterID),
		zap.Float64("total", view.Total),
		zap.Float64("grade", *view.Grade),
		zap.String("policy", view.Policy))
	return view, nil
}

// GetInstance 评分人查看实例，等级分数是否展示由 showscoreteacher 控制
func (s *GradingService) GetInstance(ctx context.Context, instanceID uint) (*InstanceView, error) {
	inst, err := s.findInstance(s.InstanceRepo, instanceID)
	if err != nil {
		return nil, err
	}
	def, err := s.Definitions.findDefinition(s.Definitions.DefinitionRepo, inst.DefinitionID)
	if err != nil {
		return nil, err
	}
	fillings, err := s.InstanceRepo.ListFillings(inst.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list fillings")
	}
	var total float64
	for _, f := range fillings {
		total += f.LevelScore
	}
	return &InstanceView{
		Instance: inst,
		Status:   inst.Status.String(),
		Fillings: instanceFillings(fillings, def.GetOptions().ShowScoreTeacher),
		Total:    total,
		Grade:    inst.RawGrade,
	}, nil
}

// GradeForItem 学生查看成绩，展示内容受定义选项控制
func (s *GradingService) GradeForItem(ctx context.Context, definitionID, itemID uint) (*StudentGradeView, error) {
	def, err := s.Definitions.findDefinition(s.Definitions.DefinitionRepo, definitionID)
	if err != nil {
		return nil, err
	}
	opts := def.GetOptions()
	out := &StudentGradeView{ItemID: itemID, Fillings: []StudentFilling{}}
	view, err := s.Definitions.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	// 隐藏的评价标准不对学生展示
	visible := make(map[uint]*rubric.Criterion, len(view.Criteria))
	shown := make([]*rubric.Criterion, 0, len(view.Criteria))
	for _, c := range view.Criteria {
		if !c.Visibility {
			continue
		}
		cp := c.Clone()
		if id, ok := cp.ID.Uint(); ok {
			visible[id] = cp
		}
		shown = append(shown, cp)
	}
	if opts.AlwaysShowDefinition {
		out.Definition = shown
	}

	inst, err := s.InstanceRepo.FindCurrentByItem(definitionID, itemID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find current instance")
	}
	fillings, err := s.InstanceRepo.ListFillings(inst.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list fillings")
	}

	out.Grade = inst.RawGrade
	out.NeedsUpdate = inst.Status == model.InstanceNeedUpdate
	out.Feedback = inst.Feedback
	for _, f := range fillings {
		c, ok := visible[f.CriterionID]
		if !ok {
			continue
		}
		sf := StudentFilling{CriterionID: f.CriterionID}
		if l, err := rubric.DecodeLevel(f.LevelJSON); err == nil {
			sf.Level = l
		}
		if opts.ShowScoreStudent {
			score := f.LevelScore
			sf.LevelScore = &score
			c.SumScore = score
		}
		if opts.EnableRemarks && opts.ShowRemarksStudent {
			sf.Remark = f.Remark
		}
		out.Fillings = append(out.Fillings, sf)
	}
	return out, nil
}

// levelSnapshot 冻结评分时的等级副本
func levelSnapshot(l *rubric.Level) (datatypes.JSON, error) {
	raw, err := rubric.EncodeLevel(l)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
