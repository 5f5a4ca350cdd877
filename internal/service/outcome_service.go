package service

import (
	"context"

	"frubric_backend/internal/model"
	"frubric_backend/internal/repository"
	"frubric_backend/internal/rubric"
	"frubric_backend/pkg/logger"
	"frubric_backend/pkg/monitoring"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	outcomeSyncBatch = 200
	taskOutcomeSync  = "outcome_sync"
)

// outcomeTarget 关联了学习成果的评价标准及其满分
type outcomeTarget struct {
	OutcomeID uint
	MaxScore  float64
}

type OutcomeService struct {
	OutcomeRepo  *repository.OutcomeRepository
	InstanceRepo *repository.InstanceRepository
	Definitions  *DefinitionService
}

func NewOutcomeService(outcomeRepo *repository.OutcomeRepository, instanceRepo *repository.InstanceRepository, definitions *DefinitionService) *OutcomeService {
	return &OutcomeService{OutcomeRepo: outcomeRepo, InstanceRepo: instanceRepo, Definitions: definitions}
}

type CreateOutcomeRequest struct {
	Shortname string  `json:"shortname" binding:"required"`
	Fullname  string  `json:"fullname"`
	ScaleMax  float64 `json:"scaleMax" binding:"omitempty,gt=0"`
}

func (s *OutcomeService) Create(req CreateOutcomeRequest) (*model.Outcome, error) {
	o := &model.Outcome{Shortname: req.Shortname, Fullname: req.Fullname, ScaleMax: req.ScaleMax}
	if o.ScaleMax == 0 {
		o.ScaleMax = 1
	}
	if err := s.OutcomeRepo.Create(o); err != nil {
		return nil, errors.Wrap(err, "create outcome")
	}
	return o, nil
}

func (s *OutcomeService) List() ([]model.Outcome, error) {
	return s.OutcomeRepo.List()
}

func (s *OutcomeService) GradesForItem(itemID uint) ([]model.OutcomeGrade, error) {
	return s.OutcomeRepo.ListGradesByItem(itemID)
}

// targets 读取定义中关联学习成果的评价标准
func (s *OutcomeService) targets(definitionID uint) (map[uint]outcomeTarget, error) {
	tree, err := s.Definitions.LoadTree(s.Definitions.DB, definitionID)
	if err != nil {
		return nil, err
	}
	res := make(map[uint]outcomeTarget)
	for _, c := range tree {
		if c.OutcomeID == nil {
			continue
		}
		id, ok := c.ID.Uint()
		if !ok {
			continue
		}
		max, err := rubric.TotalOutOf(c.LiveLevels())
		if err != nil {
			return nil, err
		}
		if max <= 0 {
			continue
		}
		res[id] = outcomeTarget{OutcomeID: *c.OutcomeID, MaxScore: max}
	}
	return res, nil
}

// SyncOutcomes 把 ACTIVE 实例的评价标准得分按比例写入学习成果成绩，返回写入条数
func (s *OutcomeService) SyncOutcomes(ctx context.Context) (written int, err error) {
	defer func() { monitoring.ObserveTask(taskOutcomeSync, err) }()

	byDefinition := make(map[uint]map[uint]outcomeTarget)
	scales := make(map[uint]float64)
	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		instances, err := s.InstanceRepo.ListActive(afterID, outcomeSyncBatch)
		if err != nil {
			return written, errors.Wrap(err, "list active instances")
		}
		if len(instances) == 0 {
			break
		}
		afterID = instances[len(instances)-1].ID

		ids := make([]uint, 0, len(instances))
		byID := make(map[uint]model.GradingInstance, len(instances))
		for _, inst := range instances {
			ids = append(ids, inst.ID)
			byID[inst.ID] = inst
			if _, ok := byDefinition[inst.DefinitionID]; ok {
				continue
			}
			t, err := s.targets(inst.DefinitionID)
			if err != nil {
				return written, err
			}
			byDefinition[inst.DefinitionID] = t
		}
		if err := s.loadScales(byDefinition, scales); err != nil {
			return written, err
		}

		fillings, err := s.InstanceRepo.ListFillingsByInstances(ids)
		if err != nil {
			return written, errors.Wrap(err, "list fillings")
		}
		for _, f := range fillings {
			inst := byID[f.InstanceID]
			t, ok := byDefinition[inst.DefinitionID][f.CriterionID]
			if !ok {
				continue
			}
			scale, ok := scales[t.OutcomeID]
			if !ok {
				continue
			}
			g := &model.OutcomeGrade{
				OutcomeID:  t.OutcomeID,
				InstanceID: inst.ID,
				ItemID:     inst.ItemID,
				Grade:      rubric.Round(f.LevelScore/t.MaxScore*scale, 2),
			}
			if err := s.OutcomeRepo.UpsertGrade(g); err != nil {
				return written, errors.Wrapf(err, "upsert outcome grade for instance %d", inst.ID)
			}
			written++
		}
		if len(instances) < outcomeSyncBatch {
			break
		}
	}
	logger.Log.Info("Outcome grades synced", zap.Int("written", written))
	return written, nil
}

func (s *OutcomeService) loadScales(byDefinition map[uint]map[uint]outcomeTarget, scales map[uint]float64) error {
	var missing []uint
	for _, targets := range byDefinition {
		for _, t := range targets {
			if _, ok := scales[t.OutcomeID]; !ok {
				missing = append(missing, t.OutcomeID)
				scales[t.OutcomeID] = 0
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	outcomes, err := s.OutcomeRepo.FindByIDs(missing)
	if err != nil {
		return errors.Wrap(err, "load outcomes")
	}
	for _, id := range missing {
		delete(scales, id)
	}
	for _, o := range outcomes {
		scales[o.ID] = o.ScaleMax
	}
	return nil
}
