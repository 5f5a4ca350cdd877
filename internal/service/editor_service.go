package service

import (
	"context"
	"encoding/json"
	"time"

	"frubric_backend/internal/config"
	"frubric_backend/internal/rubric"
	"frubric_backend/internal/util"
	"frubric_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const editorSessionPrefix = "frubric:editor:"

// editorSession Redis 中保存的编辑会话
type editorSession struct {
	ID           string          `json:"id"`
	DefinitionID uint            `json:"definitionId"`
	UserID       uint            `json:"userId"`
	Mode         rubric.Mode     `json:"mode"`
	Criteria     json.RawMessage `json:"criteria"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// EditorView 返回给前端的会话状态：id_criteria 与 criteriajsonhelper
type EditorView struct {
	SessionID    string          `json:"sessionId"`
	DefinitionID uint            `json:"definitionId"`
	Mode         rubric.Mode     `json:"mode"`
	Criteria     json.RawMessage `json:"idCriteria"`
	Helper       json.RawMessage `json:"criteriaJsonHelper"`
}

type EditorService struct {
	Redis       *redis.Client
	Definitions *DefinitionService
	Cfg         *config.EditorConfig
}

func NewEditorService(rdb *redis.Client, definitions *DefinitionService, cfg *config.EditorConfig) *EditorService {
	return &EditorService{Redis: rdb, Definitions: definitions, Cfg: cfg}
}

type AddCriterionRequest struct {
	Description string `json:"description"`
}

type EditCriterionRequest struct {
	Description *string `json:"description"`
	OutcomeID   *uint   `json:"outcomeId"`
	Visible     *bool   `json:"visible"`
	// ClearOutcome 为 true 时解除学习成果关联
	ClearOutcome bool `json:"clearOutcome"`
}

type LevelRequest struct {
	Score      *string `json:"score" binding:"omitempty,frscore"`
	Definition *string `json:"definition"`
}

type DescriptorRequest struct {
	Text string `json:"text"`
}

type TotalCheckRequest struct {
	Value float64 `json:"value"`
}

type SubmitRequest struct {
	Draft bool `json:"draft"`
}

func sessionKey(sid string) string {
	return editorSessionPrefix + sid
}

// Open 为定义创建编辑会话；已有保存内容时进入编辑模式
func (s *EditorService) Open(ctx context.Context, definitionID, userID uint) (*EditorView, error) {
	if _, err := s.Definitions.findDefinition(s.Definitions.DefinitionRepo, definitionID); err != nil {
		return nil, err
	}
	tree, err := s.Definitions.LoadTree(s.Definitions.DB, definitionID)
	if err != nil {
		return nil, err
	}
	mode := rubric.ModeCreate
	if len(tree) > 0 {
		mode = rubric.ModeEdit
	}
	sess := &editorSession{
		ID:           uuid.New().String(),
		DefinitionID: definitionID,
		UserID:       userID,
		Mode:         mode,
	}
	doc := rubric.NewDocument(mode, tree)
	if err := s.store(ctx, sess, doc); err != nil {
		return nil, err
	}
	logger.Log.Info("Editor session opened",
		zap.String("sessionId", sess.ID),
		zap.Uint("definitionId", definitionID),
		zap.Uint("userId", userID),
		zap.String("mode", string(mode)))
	return editorView(sess, doc)
}

func (s *EditorService) load(ctx context.Context, sid string, userID uint) (*editorSession, *rubric.Document, error) {
	raw, err := s.Redis.Get(ctx, sessionKey(sid)).Bytes()
	if err == redis.Nil {
		return nil, nil, util.ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "read editor session")
	}
	var sess editorSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, nil, errors.Wrap(err, "decode editor session")
	}
	if sess.UserID != userID {
		return nil, nil, util.ErrPermissionDenied
	}
	doc, err := rubric.LoadDocument(sess.Mode, sess.Criteria)
	if err != nil {
		return nil, nil, err
	}
	return &sess, doc, nil
}

func (s *EditorService) store(ctx context.Context, sess *editorSession, doc *rubric.Document) error {
	criteria, err := doc.JSON()
	if err != nil {
		return err
	}
	sess.Mode = doc.Mode
	sess.Criteria = criteria
	sess.UpdatedAt = time.Now()
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.Redis.Set(ctx, sessionKey(sess.ID), raw, s.Cfg.SessionTTL()).Err(); err != nil {
		return errors.Wrap(err, "write editor session")
	}
	return nil
}

func editorView(sess *editorSession, doc *rubric.Document) (*EditorView, error) {
	criteria, err := doc.JSON()
	if err != nil {
		return nil, err
	}
	helper, err := doc.Helper()
	if err != nil {
		return nil, err
	}
	return &EditorView{
		SessionID:    sess.ID,
		DefinitionID: sess.DefinitionID,
		Mode:         doc.Mode,
		Criteria:     criteria,
		Helper:       helper,
	}, nil
}

// Get 读取会话并刷新过期时间
func (s *EditorService) Get(ctx context.Context, sid string, userID uint) (*EditorView, error) {
	sess, doc, err := s.load(ctx, sid, userID)
	if err != nil {
		return nil, err
	}
	if err := s.Redis.Expire(ctx, sessionKey(sid), s.Cfg.SessionTTL()).Err(); err != nil {
		logger.Log.Warn("Editor session refresh failed", zap.String("sessionId", sid), zap.Error(err))
	}
	return editorView(sess, doc)
}

// Mutate 读取会话、执行修改并写回；修改失败时会话保持原样
func (s *EditorService) Mutate(ctx context.Context, sid string, userID uint, fn func(doc *rubric.Document) error) (*EditorView, error) {
	sess, doc, err := s.load(ctx, sid, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	if err := s.store(ctx, sess, doc); err != nil {
		return nil, err
	}
	return editorView(sess, doc)
}

func (s *EditorService) AddCriterion(ctx context.Context, sid string, userID uint, req AddCriterionRequest) (*EditorView, error) {
	return s.Mutate(ctx, sid, userID, func(doc *rubric.Document) error {
		doc.AddCriterion(req.Description)
		return nil
	})
}

func (s *EditorService) EditCriterion(ctx context.Context, sid string, userID uint, cid rubric.NodeID, req EditCriterionRequest) (*EditorView, error) {
	return s.Mutate(ctx, sid, userID, func(doc *rubric.Document) error {
		if req.Description != nil {
			if err := doc.EditDescription(cid, *req.Description); err != nil {
				return err
			}
		}
		if req.Visible != nil {
			if err := doc.SetVisibility(cid, *req.Visible); err != nil {
				return err
			}
		}
		switch {
		case req.ClearOutcome:
			return doc.SetOutcome(cid, nil)
		case req.OutcomeID != nil:
			return doc.SetOutcome(cid, req.OutcomeID)
		}
		return nil
	})
}

func (s *EditorService) RemoveCriterion(ctx context.Context, sid string, userID uint, cid rubric.NodeID) (*EditorView, error) {
	return s.Mutate(ctx, sid, userID, func(doc *rubric.Document) error {
		return doc.RemoveCriterion(cid)
	})
}

func (s *EditorService) AddLevel(ctx context.Context, sid string, userID uint, cid rubric.NodeID, req LevelRequest) (*EditorView, error) {
	return s.Mutate(ctx, sid, userID, func(doc *rubric.Document) error {
		score, definition := "", ""
		if req.Score != nil {
			score = *req.Score
		}
		if req.Definition != nil {
			definition = *req.Definition
		}
		_, err := doc.AddLevel(cid, score, definition)
		return err
	})
}

func (s *EditorService) EditLevel(ctx context.Context, sid string, userID uint, cid, lid rubric.NodeID, req LevelRequest) (*EditorView, error) {
	return s.Mutate(ctx, sid, userID, func(doc *rubric.Document) error {
		if req.Score != nil {
			if err := doc.EditMark(cid, lid, *req.Score); err != nil {
				return err
			}
		}
		if req.Definition != nil {
			return doc.EditLevelDefinition(cid, lid, *req.Definition)
		}
		return nil
	})
}

func (s *EditorService) DeleteLevel(ctx context.Context, sid string, userID uint, cid, lid rubric.NodeID) (*EditorView, error) {
	return s.Mutate(ctx, sid, userID, func(doc *rubric.Document) error {
		return doc.DeleteLevel(cid, lid)
	})
}

func (s *EditorService) AddDescriptor(ctx context.Context, sid string, userID uint, cid, lid rubric.NodeID, req DescriptorRequest) (*EditorView, error) {
	return s.Mutate(ctx, sid, userID, func(doc *rubric.Document) error {
		_, err := doc.AddDescriptor(cid, lid, req.Text)
		return err
	})
}

func (s *EditorService) EditDescriptor(ctx context.Context, sid string, userID uint, cid, lid, did rubric.NodeID, req DescriptorRequest) (*EditorView, error) {
	return s.Mutate(ctx, sid, userID, func(doc *rubric.Document) error {
		return doc.EditDescriptor(cid, lid, did, req.Text)
	})
}

func (s *EditorService) DeleteDescriptor(ctx context.Context, sid string, userID uint, cid, lid, did rubric.NodeID) (*EditorView, error) {
	return s.Mutate(ctx, sid, userID, func(doc *rubric.Document) error {
		return doc.DeleteDescriptor(cid, lid, did)
	})
}

// CheckTotal 只读检查，不修改会话
func (s *EditorService) CheckTotal(ctx context.Context, sid string, userID uint, cid rubric.NodeID, value float64) (*rubric.RangeViolation, error) {
	_, doc, err := s.load(ctx, sid, userID)
	if err != nil {
		return nil, err
	}
	return doc.CheckTotal(cid, value)
}

// SubmitResult 提交成功时 Save 有值；校验失败时 Errors 与 Helper 有值
type SubmitResult struct {
	Save   *SaveResult             `json:"save,omitempty"`
	Errors rubric.ValidationErrors `json:"errors,omitempty"`
	Editor *EditorView             `json:"editor"`
}

// Submit 保存会话内容。成功后会话以编辑模式加载新的树继续使用。
func (s *EditorService) Submit(ctx context.Context, sid string, userID uint, req SubmitRequest) (*SubmitResult, error) {
	sess, doc, err := s.load(ctx, sid, userID)
	if err != nil {
		return nil, err
	}
	saved, err := s.Definitions.Save(ctx, sess.DefinitionID, userID, doc.Criteria, req.Draft)
	var verrs rubric.ValidationErrors
	if errors.As(err, &verrs) {
		v, err := editorView(sess, doc)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Errors: verrs, Editor: v}, nil
	}
	if err != nil {
		return nil, err
	}

	next := rubric.NewDocument(rubric.ModeEdit, saved.Criteria)
	if err := s.store(ctx, sess, next); err != nil {
		return nil, err
	}
	v, err := editorView(sess, next)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Save: saved, Editor: v}, nil
}

func (s *EditorService) Close(ctx context.Context, sid string, userID uint) error {
	if _, _, err := s.load(ctx, sid, userID); err != nil {
		return err
	}
	return s.Redis.Del(ctx, sessionKey(sid)).Err()
}
