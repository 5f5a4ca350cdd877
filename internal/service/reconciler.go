package service

import (
	"context"

	"frubric_backend/internal/model"
	"frubric_backend/internal/repository"
	"frubric_backend/internal/rubric"
	"frubric_backend/internal/util"
	"frubric_backend/pkg/logger"
	"frubric_backend/pkg/monitoring"
	"frubric_backend/pkg/tracing"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReconcileResult 一次保存的结果：最终树、占位 ID 映射和修改严重程度
type ReconcileResult struct {
	Severity rubric.Severity                 `json:"severity"`
	IDMap    map[rubric.NodeID]rubric.NodeID `json:"idMap"`
	Criteria []*rubric.Criterion             `json:"criteria"`
	Flagged  int64                           `json:"flagged"`
}

// DefinitionReconciler 将编辑器提交的评分树与数据库中的行做差异同步。
// 提交中未出现的已保存节点保持不变，只有显式 DELETE 才会删除。
type DefinitionReconciler struct{}

func NewDefinitionReconciler() *DefinitionReconciler {
	return &DefinitionReconciler{}
}

type reconcileRun struct {
	repo         *repository.CriterionRepository
	definitionID uint
	criteria     map[uint]model.Criterion
	levels       map[uint]model.Level
	descriptors  map[uint]model.Descriptor
	severity     rubric.Severity
	idMap        map[rubric.NodeID]rubric.NodeID
}

// Reconcile 必须在调用方的事务内执行；任何错误都应导致整个事务回滚
func (r *DefinitionReconciler) Reconcile(ctx context.Context, tx *gorm.DB, definitionID uint, criteria []*rubric.Criterion) (*ReconcileResult, error) {
	_, span := tracing.Start(ctx, "frubric.reconcile", attribute.Int("definition.id", int(definitionID)))
	defer span.End()

	run := &reconcileRun{
		repo:         repository.NewCriterionRepository(tx),
		definitionID: definitionID,
		idMap:        map[rubric.NodeID]rubric.NodeID{},
	}
	if err := run.load(); err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	out := make([]*rubric.Criterion, 0, len(criteria))
	for _, c := range criteria {
		keep, err := run.criterion(c, len(out))
		if err != nil {
			tracing.Fail(span, err)
			return nil, err
		}
		if keep {
			out = append(out, c)
		}
	}

	res := &ReconcileResult{Severity: run.severity, IDMap: run.idMap, Criteria: out}
	if run.severity.NeedsRegrade() {
		n, err := repository.NewInstanceRepository(tx).MarkNeedUpdate(definitionID)
		if err != nil {
			err = errors.Wrap(err, "mark instances for regrade")
			tracing.Fail(span, err)
			return nil, err
		}
		res.Flagged = n
		monitoring.RegradeFlagged.Add(float64(n))
	}

	span.SetAttributes(attribute.Int("severity", int(run.severity)), attribute.Int64("flagged", res.Flagged))
	monitoring.ObserveDefinitionSave(int(run.severity))
	logger.Component("reconciler").Debug("definition reconciled",
		zap.Uint("definitionId", definitionID),
		zap.Int("severity", int(run.severity)),
		zap.Int("criteria", len(out)),
		zap.Int64("flagged", res.Flagged))
	return res, nil
}

func (run *reconcileRun) load() error {
	criteria, levels, descriptors, err := run.repo.LoadRows(run.definitionID)
	if err != nil {
		return errors.Wrap(err, "load definition rows")
	}
	run.criteria = make(map[uint]model.Criterion, len(criteria))
	for _, c := range criteria {
		run.criteria[c.ID] = c
	}
	run.levels = make(map[uint]model.Level, len(levels))
	for _, l := range levels {
		run.levels[l.ID] = l
	}
	run.descriptors = make(map[uint]model.Descriptor, len(descriptors))
	for _, d := range descriptors {
		run.descriptors[d.ID] = d
	}
	return nil
}

// relabel 记录占位 ID 到数据库 ID 的映射并改写节点 ID
func (run *reconcileRun) relabel(id *rubric.NodeID, newID uint) {
	nid := rubric.PersistedID(newID)
	if id.IsPending() {
		run.idMap[*id] = nid
	}
	*id = nid
}

func persisted(status rubric.NodeStatus) rubric.NodeStatus {
	next, err := rubric.Transition(status, rubric.EventPersist)
	if err != nil || next == rubric.StatusRemoved {
		return rubric.StatusClean
	}
	return next
}

// storedCriterion 返回属于本定义的已保存评价标准
func (run *reconcileRun) storedCriterion(id rubric.NodeID) (model.Criterion, bool) {
	uid, ok := id.Uint()
	if !ok {
		return model.Criterion{}, false
	}
	row, ok := run.criteria[uid]
	return row, ok
}

func (run *reconcileRun) criterion(c *rubric.Criterion, position int) (bool, error) {
	if c.Status == rubric.StatusDelete {
		if c.IsPending() {
			return false, nil
		}
		row, ok := run.storedCriterion(c.ID)
		if !ok {
			return false, nil
		}
		if err := run.repo.DeleteCriterion(row.ID); err != nil {
			return false, errors.Wrapf(err, "delete criterion %d", row.ID)
		}
		run.severity.Raise(rubric.SeverityCriterionRemoved)
		return false, nil
	}

	if c.IsPending() || c.Status == rubric.StatusNew {
		if _, ok := run.storedCriterion(c.ID); !ok || c.IsPending() {
			return true, run.insertCriterion(c, position)
		}
	}
	return true, run.updateCriterion(c, position)
}

func (run *reconcileRun) insertCriterion(c *rubric.Criterion, position int) error {
	row := &model.Criterion{
		DefinitionID: run.definitionID,
		SortOrder:    position,
		Description:  c.Description,
		OutcomeID:    c.OutcomeID,
	}
	if err := run.repo.CreateCriterion(row); err != nil {
		return errors.Wrap(err, "insert criterion")
	}
	if c.CID.IsPending() && c.CID != c.ID {
		run.idMap[c.CID] = rubric.PersistedID(row.ID)
	}
	run.relabel(&c.ID, row.ID)
	c.CID = c.ID
	c.DefinitionID = run.definitionID
	c.RowIndex = position
	c.Status = rubric.StatusCreated
	run.severity.Raise(rubric.SeverityCriterionAdded)

	kept := c.Levels[:0]
	for _, l := range c.Levels {
		if l.Status == rubric.StatusDelete {
			continue
		}
		if err := run.insertLevel(row.ID, l); err != nil {
			return err
		}
		kept = append(kept, l)
	}
	c.Levels = kept
	return run.writeCriterionSnapshot(row.ID, c)
}

func (run *reconcileRun) updateCriterion(c *rubric.Criterion, position int) error {
	row, ok := run.storedCriterion(c.ID)
	if !ok {
		return errors.Wrapf(rubric.ErrCriterionNotFound, "criterion %s in definition %d", c.ID, run.definitionID)
	}

	fields := map[string]interface{}{}
	if row.Description != c.Description {
		fields["description"] = c.Description
		run.severity.Raise(rubric.SeverityText)
	}
	if !sameOutcome(row.OutcomeID, c.OutcomeID) {
		fields["outcome_id"] = c.OutcomeID
		run.severity.Raise(rubric.SeverityText)
	}
	// 仅调整顺序不影响已评分结果
	if row.SortOrder != position {
		fields["sort_order"] = position
	}
	if len(fields) > 0 {
		if err := run.repo.UpdateCriterion(row.ID, fields); err != nil {
			return errors.Wrapf(err, "update criterion %d", row.ID)
		}
	}

	kept := c.Levels[:0]
	for _, l := range c.Levels {
		keep, err := run.level(row.ID, l)
		if err != nil {
			return err
		}
		if keep {
			kept = append(kept, l)
		}
	}
	c.Levels = kept
	c.CID = c.ID
	c.DefinitionID = run.definitionID
	c.RowIndex = position
	c.Status = persisted(c.Status)
	return run.writeCriterionSnapshot(row.ID, c)
}

func sameOutcome(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (run *reconcileRun) writeCriterionSnapshot(id uint, c *rubric.Criterion) error {
	c.Refresh()
	raw, err := rubric.EncodeCriterion(c)
	if err != nil {
		return errors.Wrapf(err, "encode criterion %d", id)
	}
	if err := run.repo.SetCriteriaJSON(id, raw); err != nil {
		return errors.Wrapf(err, "store criterion %d snapshot", id)
	}
	return nil
}

func (run *reconcileRun) level(criterionID uint, l *rubric.Level) (bool, error) {
	if l.Status == rubric.StatusDelete {
		if l.ID.IsPending() {
			return false, nil
		}
		row, ok := run.storedLevel(criterionID, l.ID)
		if !ok {
			return false, nil
		}
		if err := run.repo.DeleteLevel(row.ID); err != nil {
			return false, errors.Wrapf(err, "delete level %d", row.ID)
		}
		run.severity.Raise(rubric.SeverityLevels)
		return false, nil
	}

	if l.ID.IsPending() {
		if err := run.insertLevel(criterionID, l); err != nil {
			return false, err
		}
		run.severity.Raise(rubric.SeverityLevels)
		return true, nil
	}
	return true, run.updateLevel(criterionID, l)
}

func (run *reconcileRun) storedLevel(criterionID uint, id rubric.NodeID) (model.Level, bool) {
	uid, ok := id.Uint()
	if !ok {
		return model.Level{}, false
	}
	row, ok := run.levels[uid]
	if !ok || row.CriterionID != criterionID {
		return model.Level{}, false
	}
	return row, true
}

func (run *reconcileRun) insertLevel(criterionID uint, l *rubric.Level) error {
	if criterionID == 0 {
		return errors.Wrapf(util.ErrUnresolvedParent, "level %s", l.ID)
	}
	r, err := rubric.ParseScore(l.Score)
	if err != nil {
		return errors.Wrapf(err, "level %s", l.ID)
	}
	row := &model.Level{CriterionID: criterionID, Score: l.Score}
	if err := run.repo.CreateLevel(row); err != nil {
		return errors.Wrap(err, "insert level")
	}
	run.relabel(&l.ID, row.ID)
	l.Status = rubric.StatusCreated

	kept := l.Descriptors[:0]
	for _, d := range l.Descriptors {
		if d.Status == rubric.StatusDelete {
			continue
		}
		if err := run.insertDescriptor(criterionID, row.ID, r, d); err != nil {
			return err
		}
		kept = append(kept, d)
	}
	l.Descriptors = kept
	return run.writeLevelSnapshot(row.ID, l)
}

func (run *reconcileRun) updateLevel(criterionID uint, l *rubric.Level) error {
	row, ok := run.storedLevel(criterionID, l.ID)
	if !ok {
		return errors.Wrapf(rubric.ErrLevelNotFound, "level %s of criterion %d", l.ID, criterionID)
	}
	r, err := rubric.ParseScore(l.Score)
	if err != nil {
		return errors.Wrapf(err, "level %s", l.ID)
	}

	fields := map[string]interface{}{}
	if row.Score != l.Score {
		fields["score"] = l.Score
		// "1-5" 与 "1/5" 区间相同，只改写法不算分数变化
		if old, err := rubric.ParseScore(row.Score); err != nil || old != r {
			run.severity.Raise(rubric.SeverityScore)
		}
	}
	if storedLevelText(row) != l.Definition {
		run.severity.Raise(rubric.SeverityText)
	}
	if len(fields) > 0 {
		if err := run.repo.UpdateLevel(row.ID, fields); err != nil {
			return errors.Wrapf(err, "update level %d", row.ID)
		}
	}

	kept := l.Descriptors[:0]
	for _, d := range l.Descriptors {
		keep, err := run.descriptor(criterionID, row.ID, r, d)
		if err != nil {
			return err
		}
		if keep {
			kept = append(kept, d)
		}
	}
	l.Descriptors = kept
	l.Status = persisted(l.Status)
	return run.writeLevelSnapshot(row.ID, l)
}

// storedLevelText 从等级快照中取出说明文字
func storedLevelText(row model.Level) string {
	if len(row.Definition) == 0 {
		return ""
	}
	snap, err := rubric.DecodeLevel(row.Definition)
	if err != nil {
		return ""
	}
	return snap.Definition
}

func (run *reconcileRun) writeLevelSnapshot(id uint, l *rubric.Level) error {
	raw, err := rubric.EncodeLevel(l)
	if err != nil {
		return errors.Wrapf(err, "encode level %d", id)
	}
	if err := run.repo.SetLevelDefinition(id, raw); err != nil {
		return errors.Wrapf(err, "store level %d snapshot", id)
	}
	return nil
}

func (run *reconcileRun) descriptor(criterionID, levelID uint, r rubric.ScoreRange, d *rubric.Descriptor) (bool, error) {
	if d.Status == rubric.StatusDelete {
		if d.ID.IsPending() {
			return false, nil
		}
		row, ok := run.storedDescriptor(levelID, d.ID)
		if !ok {
			return false, nil
		}
		if err := run.repo.DeleteDescriptor(row.ID); err != nil {
			return false, errors.Wrapf(err, "delete descriptor %d", row.ID)
		}
		run.severity.Raise(rubric.SeverityScore)
		return false, nil
	}

	if d.ID.IsPending() {
		if err := run.insertDescriptor(criterionID, levelID, r, d); err != nil {
			return false, err
		}
		run.severity.Raise(rubric.SeverityScore)
		return true, nil
	}

	row, ok := run.storedDescriptor(levelID, d.ID)
	if !ok {
		return false, errors.Wrapf(rubric.ErrDescriptorMissing, "descriptor %s of level %d", d.ID, levelID)
	}
	fields := map[string]interface{}{}
	if row.Description != d.Text {
		fields["description"] = d.Text
		run.severity.Raise(rubric.SeverityText)
	}
	if row.Selected != d.Checked {
		fields["selected"] = d.Checked
	}
	if row.MaxScore != r.Max {
		fields["max_score"] = r.Max
	}
	if len(fields) > 0 {
		if err := run.repo.UpdateDescriptor(row.ID, fields); err != nil {
			return false, errors.Wrapf(err, "update descriptor %d", row.ID)
		}
	}
	d.Status = persisted(d.Status)
	return true, nil
}

func (run *reconcileRun) storedDescriptor(levelID uint, id rubric.NodeID) (model.Descriptor, bool) {
	uid, ok := id.Uint()
	if !ok {
		return model.Descriptor{}, false
	}
	row, ok := run.descriptors[uid]
	if !ok || row.LevelID != levelID {
		return model.Descriptor{}, false
	}
	return row, true
}

func (run *reconcileRun) insertDescriptor(criterionID, levelID uint, r rubric.ScoreRange, d *rubric.Descriptor) error {
	if levelID == 0 {
		return errors.Wrapf(util.ErrUnresolvedParent, "descriptor %s", d.ID)
	}
	row := &model.Descriptor{
		CriterionID: criterionID,
		LevelID:     levelID,
		MaxScore:    r.Max,
		Description: d.Text,
		Selected:    d.Checked,
	}
	if err := run.repo.CreateDescriptor(row); err != nil {
		return errors.Wrap(err, "insert descriptor")
	}
	run.relabel(&d.ID, row.ID)
	d.Status = rubric.StatusCreated
	return nil
}
