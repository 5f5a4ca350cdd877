package service

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"frubric_backend/internal/model"
	"frubric_backend/internal/repository"
	"frubric_backend/internal/rubric"
	"frubric_backend/internal/util"
	"frubric_backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const backupVersion = 1

type backupDoc struct {
	XMLName      xml.Name          `xml:"frubric"`
	Version      int               `xml:"version,attr"`
	DefinitionID uint              `xml:"definitionid,attr"`
	Name         string            `xml:"name"`
	Description  string            `xml:"description"`
	Status       int               `xml:"status"`
	Options      string            `xml:"options"`
	Criteria     []backupCriterion `xml:"frcriteria>frcriterion"`
	Instances    []backupInstance  `xml:"instances>instance"`
}

type backupCriterion struct {
	ID                uint          `xml:"id,attr"`
	SortOrder         int           `xml:"sortorder"`
	Description       string        `xml:"description"`
	DescriptionFormat int           `xml:"descriptionformat"`
	OutcomeID         *uint         `xml:"outcomeid,omitempty"`
	CriteriaJSON      string        `xml:"criteriajson"`
	Levels            []backupLevel `xml:"frlevels>frlevel"`
}

type backupLevel struct {
	ID               uint               `xml:"id,attr"`
	Score            string             `xml:"score"`
	Definition       string             `xml:"definition"`
	DefinitionFormat int                `xml:"definitionformat"`
	Descriptors      []backupDescriptor `xml:"frdescriptors>frdescriptor"`
}

type backupDescriptor struct {
	ID          uint    `xml:"id,attr"`
	Description string  `xml:"description"`
	Selected    bool    `xml:"selected"`
	Score       float64 `xml:"score"`
	MaxScore    float64 `xml:"maxscore"`
	Deleted     bool    `xml:"deleted"`
}

type backupInstance struct {
	ID       uint            `xml:"id,attr"`
	RaterID  uint            `xml:"raterid"`
	ItemID   uint            `xml:"itemid"`
	RawGrade *float64        `xml:"rawgrade,omitempty"`
	Status   int             `xml:"status"`
	Feedback string          `xml:"feedback"`
	Fillings []backupFilling `xml:"fillings>filling"`
}

type backupFilling struct {
	CriterionID  uint    `xml:"criterionid"`
	LevelID      uint    `xml:"levelid"`
	Remark       string  `xml:"remark"`
	RemarkFormat int     `xml:"remarkformat"`
	LevelScore   float64 `xml:"levelscore"`
	LevelJSON    string  `xml:"leveljson"`
}

type BackupRequest struct {
	IncludeGrades bool `json:"includeGrades"`
}

type RestoreRequest struct {
	Key string `json:"key" binding:"required"`
}

type BackupResult struct {
	Key      string `json:"key"`
	Location string `json:"location"`
	Size     int    `json:"size"`
	Criteria int    `json:"criteria"`
	Fillings int    `json:"fillings"`
}

type RestoreResult struct {
	DefinitionID uint           `json:"definitionId"`
	IDMaps       *rubric.IDMaps `json:"-"`
	Criteria     int            `json:"criteria"`
	Instances    int            `json:"instances"`
}

type BackupService struct {
	DB           *gorm.DB
	Definitions  *DefinitionService
	InstanceRepo *repository.InstanceRepository
	Store        ArchiveStore
}

func NewBackupService(db *gorm.DB, definitions *DefinitionService, instanceRepo *repository.InstanceRepository, store ArchiveStore) *BackupService {
	return &BackupService{DB: db, Definitions: definitions, InstanceRepo: instanceRepo, Store: store}
}

// Export 生成定义的 XML 备份
func (s *BackupService) Export(definitionID uint, includeGrades bool) ([]byte, *BackupResult, error) {
	def, err := s.Definitions.findDefinition(s.Definitions.DefinitionRepo, definitionID)
	if err != nil {
		return nil, nil, err
	}
	criteria, levels, descriptors, err := s.Definitions.CriterionRepo.LoadRows(definitionID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load definition rows")
	}

	doc := backupDoc{
		Version:      backupVersion,
		DefinitionID: def.ID,
		Name:         def.Name,
		Description:  def.Description,
		Status:       int(def.Status),
		Options:      string(def.Options),
	}
	descByLevel := make(map[uint][]backupDescriptor, len(levels))
	for _, d := range descriptors {
		descByLevel[d.LevelID] = append(descByLevel[d.LevelID], backupDescriptor{
			ID:          d.ID,
			Description: d.Description,
			Selected:    d.Selected,
			Score:       d.Score,
			MaxScore:    d.MaxScore,
			Deleted:     d.Deleted,
		})
	}
	levelsByCriterion := make(map[uint][]backupLevel, len(criteria))
	for _, l := range levels {
		levelsByCriterion[l.CriterionID] = append(levelsByCriterion[l.CriterionID], backupLevel{
			ID:               l.ID,
			Score:            l.Score,
			Definition:       string(l.Definition),
			DefinitionFormat: l.DefinitionFormat,
			Descriptors:      descByLevel[l.ID],
		})
	}
	for _, c := range criteria {
		doc.Criteria = append(doc.Criteria, backupCriterion{
			ID:                c.ID,
			SortOrder:         c.SortOrder,
			Description:       c.Description,
			DescriptionFormat: c.DescriptionFormat,
			OutcomeID:         c.OutcomeID,
			CriteriaJSON:      string(c.CriteriaJSON),
			Levels:            levelsByCriterion[c.ID],
		})
	}

	res := &BackupResult{Criteria: len(doc.Criteria)}
	if includeGrades {
		instances, err := s.InstanceRepo.ListByDefinition(definitionID)
		if err != nil {
			return nil, nil, errors.Wrap(err, "list instances")
		}
		ids := make([]uint, 0, len(instances))
		for _, inst := range instances {
			ids = append(ids, inst.ID)
		}
		fillings, err := s.InstanceRepo.ListFillingsByInstances(ids)
		if err != nil {
			return nil, nil, errors.Wrap(err, "list fillings")
		}
		byInstance := make(map[uint][]backupFilling, len(instances))
		for _, f := range fillings {
			byInstance[f.InstanceID] = append(byInstance[f.InstanceID], backupFilling{
				CriterionID:  f.CriterionID,
				LevelID:      f.LevelID,
				Remark:       f.Remark,
				RemarkFormat: f.RemarkFormat,
				LevelScore:   f.LevelScore,
				LevelJSON:    string(f.LevelJSON),
			})
		}
		for _, inst := range instances {
			doc.Instances = append(doc.Instances, backupInstance{
				ID:       inst.ID,
				RaterID:  inst.RaterID,
				ItemID:   inst.ItemID,
				RawGrade: inst.RawGrade,
				Status:   int(inst.Status),
				Feedback: inst.Feedback,
				Fillings: byInstance[inst.ID],
			})
		}
		res.Fillings = len(fillings)
	}

	raw, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, nil, errors.Wrap(err, "encode backup")
	}
	raw = append([]byte(xml.Header), raw...)
	res.Size = len(raw)
	return raw, res, nil
}

// Backup 导出并写入存储
func (s *BackupService) Backup(ctx context.Context, definitionID uint, req BackupRequest) (*BackupResult, error) {
	raw, res, err := s.Export(definitionID, req.IncludeGrades)
	if err != nil {
		return nil, err
	}
	res.Key = fmt.Sprintf("frubric/%d/%s-%s.xml", definitionID, time.Now().Format("20060102150405"), uuid.New().String()[:8])
	res.Location, err = s.Store.Put(ctx, res.Key, raw)
	if err != nil {
		return nil, errors.Wrap(err, "store backup")
	}
	logger.Log.Info("Definition backed up",
		zap.Uint("definitionId", definitionID),
		zap.String("key", res.Key),
		zap.Int("size", res.Size))
	return res, nil
}

// Restore 从存储读取备份并恢复到指定区域
func (s *BackupService) Restore(ctx context.Context, areaID, userID uint, req RestoreRequest) (*RestoreResult, error) {
	raw, err := s.Store.Get(ctx, req.Key)
	if err != nil {
		return nil, errors.Wrapf(err, "read backup %s", req.Key)
	}
	return s.Import(ctx, areaID, userID, raw)
}

// Import 插入全新的行，并把 JSON 快照中嵌入的旧 ID 改写为新 ID
func (s *BackupService) Import(ctx context.Context, areaID, userID uint, raw []byte) (*RestoreResult, error) {
	var doc backupDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(util.ErrInvalidBackup, err.Error())
	}
	if doc.Version != backupVersion {
		return nil, errors.Wrapf(util.ErrInvalidBackup, "unsupported version %d", doc.Version)
	}
	if _, err := s.Definitions.GetArea(areaID); err != nil {
		return nil, err
	}

	res := &RestoreResult{}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		def := &model.GradingDefinition{
			AreaID:       areaID,
			Name:         doc.Name,
			Description:  doc.Description,
			Status:       model.DefinitionStatus(doc.Status),
			CopiedFromID: doc.DefinitionID,
			UserCreated:  userID,
			UserModified: userID,
		}
		if doc.Options != "" {
			def.Options = datatypes.JSON(doc.Options)
		}
		if err := s.Definitions.DefinitionRepo.WithTx(tx).Create(def); err != nil {
			return errors.Wrap(err, "create definition")
		}
		maps := rubric.NewIDMaps(def.ID)
		if err := restoreTree(repository.NewCriterionRepository(tx), maps, doc.Criteria); err != nil {
			return err
		}
		n, err := restoreInstances(repository.NewInstanceRepository(tx), maps, doc.Instances)
		if err != nil {
			return err
		}
		res.DefinitionID = def.ID
		res.IDMaps = maps
		res.Criteria = len(doc.Criteria)
		res.Instances = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Definition restored",
		zap.Uint("sourceDefinitionId", doc.DefinitionID),
		zap.Uint("definitionId", res.DefinitionID),
		zap.Uint("areaId", areaID))
	return res, nil
}

func restoreTree(repo *repository.CriterionRepository, maps *rubric.IDMaps, criteria []backupCriterion) error {
	type pendingLevel struct {
		id  uint
		raw string
	}
	criterionJSON := make(map[uint]string, len(criteria))
	var levels []pendingLevel

	for _, bc := range criteria {
		row := &model.Criterion{
			DefinitionID:      maps.DefinitionID,
			SortOrder:         bc.SortOrder,
			Description:       bc.Description,
			DescriptionFormat: bc.DescriptionFormat,
			OutcomeID:         bc.OutcomeID,
		}
		if err := repo.CreateCriterion(row); err != nil {
			return errors.Wrap(err, "restore criterion")
		}
		maps.Criteria[bc.ID] = row.ID
		criterionJSON[row.ID] = bc.CriteriaJSON

		for _, bl := range bc.Levels {
			level := &model.Level{
				CriterionID:      row.ID,
				Score:            bl.Score,
				DefinitionFormat: bl.DefinitionFormat,
			}
			if err := repo.CreateLevel(level); err != nil {
				return errors.Wrap(err, "restore level")
			}
			maps.Levels[bl.ID] = level.ID
			levels = append(levels, pendingLevel{id: level.ID, raw: bl.Definition})

			for _, bd := range bl.Descriptors {
				d := &model.Descriptor{
					CriterionID: row.ID,
					LevelID:     level.ID,
					Score:       bd.Score,
					MaxScore:    bd.MaxScore,
					Description: bd.Description,
					Selected:    bd.Selected,
					Deleted:     bd.Deleted,
				}
				if err := repo.CreateDescriptor(d); err != nil {
					return errors.Wrap(err, "restore descriptor")
				}
				maps.Descriptors[bd.ID] = d.ID
			}
		}
	}

	// 全部节点插入后映射才完整，最后统一改写快照
	for _, l := range levels {
		if l.raw == "" {
			continue
		}
		remapped, err := maps.RemapLevelJSON([]byte(l.raw))
		if err != nil {
			return errors.Wrap(util.ErrInvalidBackup, err.Error())
		}
		if err := repo.SetLevelDefinition(l.id, remapped); err != nil {
			return errors.Wrap(err, "restore level snapshot")
		}
	}
	for id, raw := range criterionJSON {
		if raw == "" {
			continue
		}
		remapped, err := maps.RemapCriterionJSON([]byte(raw))
		if err != nil {
			return errors.Wrap(util.ErrInvalidBackup, err.Error())
		}
		if err := repo.SetCriteriaJSON(id, remapped); err != nil {
			return errors.Wrap(err, "restore criterion snapshot")
		}
	}
	return nil
}

// restoreInstances 已删除的评价标准在映射中不存在，对应 ID 置 0，冻结的 leveljson 仍保留
func restoreInstances(repo *repository.InstanceRepository, maps *rubric.IDMaps, instances []backupInstance) (int, error) {
	for _, bi := range instances {
		inst := &model.GradingInstance{
			DefinitionID: maps.DefinitionID,
			RaterID:      bi.RaterID,
			ItemID:       bi.ItemID,
			RawGrade:     bi.RawGrade,
			Status:       model.InstanceStatus(bi.Status),
			Feedback:     bi.Feedback,
		}
		if err := repo.Create(inst); err != nil {
			return 0, errors.Wrap(err, "restore instance")
		}
		fillings := make([]model.Filling, 0, len(bi.Fillings))
		for _, bf := range bi.Fillings {
			f := model.Filling{
				CriterionID:  maps.Criteria[bf.CriterionID],
				LevelID:      maps.Levels[bf.LevelID],
				Remark:       bf.Remark,
				RemarkFormat: bf.RemarkFormat,
				LevelScore:   bf.LevelScore,
			}
			if bf.LevelJSON != "" {
				remapped, err := maps.RemapLevelJSON([]byte(bf.LevelJSON))
				if err != nil {
					return 0, errors.Wrap(util.ErrInvalidBackup, err.Error())
				}
				f.LevelJSON = datatypes.JSON(remapped)
			}
			fillings = append(fillings, f)
		}
		if err := repo.ReplaceFillings(inst.ID, fillings); err != nil {
			return 0, errors.Wrap(err, "restore fillings")
		}
	}
	return len(instances), nil
}
