package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/learning"
	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// 🎓 学习引擎 Handler
// =============================================================================

// LearningHandler 学习引擎处理器
type LearningHandler struct {
	engine *learning.Engine
	logger *zap.Logger
}

// NewLearningHandler 创建学习处理器
func NewLearningHandler(engine *learning.Engine, logger *zap.Logger) *LearningHandler {
	return &LearningHandler{
		engine: engine,
		logger: logger.With(zap.String("component", "learning_handler")),
	}
}

// RegisterAgentRequest 注册 Agent 请求
type RegisterAgentRequest struct {
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
}

// HandleRegister 处理 POST /api/v1/agents
func (h *LearningHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req RegisterAgentRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.AgentID == "" {
		WriteErrorMessage(w, types.ErrValidation, "agent_id is required", h.logger)
		return
	}

	created := h.engine.RegisterAgent(req.AgentID, req.AgentType)
	WriteSuccess(w, map[string]any{"agent_id": req.AgentID, "created": created})
}

// FeedbackRequest 反馈处理请求
type FeedbackRequest struct {
	AgentID        string         `json:"agent_id"`
	ConversationID string         `json:"conversation_id"`
	FeedbackType   string         `json:"feedback_type"`
	Feedback       map[string]any `json:"feedback"`
}

// HandleFeedback 处理 POST /api/v1/feedback
func (h *LearningHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req FeedbackRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	outcome, err := h.engine.ProcessFeedback(
		r.Context(),
		req.AgentID,
		req.ConversationID,
		req.Feedback,
		types.FeedbackType(req.FeedbackType),
	)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, outcome)
}

// RecommendationRequest 推荐查询请求
type RecommendationRequest struct {
	AgentID string         `json:"agent_id"`
	Context map[string]any `json:"context"`
}

// HandleRecommendations 处理 POST /api/v1/recommendations
func (h *LearningHandler) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req RecommendationRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	recs, err := h.engine.GetLearningRecommendations(r.Context(), req.AgentID, req.Context)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, recs)
}

// SelectActionRequest 动作选择请求
type SelectActionRequest struct {
	AgentID string         `json:"agent_id"`
	Context map[string]any `json:"context"`
	Actions []string       `json:"actions"`
}

// HandleSelectAction 处理 POST /api/v1/actions/select
func (h *LearningHandler) HandleSelectAction(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req SelectActionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	choice, err := h.engine.SelectAction(r.Context(), req.AgentID, req.Context, req.Actions)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, choice)
}

// HandleAdapt 处理 POST /api/v1/agents/{id}/adapt
func (h *LearningHandler) HandleAdapt(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if agentID == "" {
		WriteErrorMessage(w, types.ErrValidation, "agent id is required", h.logger)
		return
	}

	if err := h.engine.AdaptAgentBehavior(r.Context(), agentID); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	profile, err := h.engine.ProfileSnapshot(agentID)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, profile)
}

// HandleProfile 处理 GET /api/v1/agents/{id}/profile
func (h *LearningHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if agentID == "" {
		WriteErrorMessage(w, types.ErrValidation, "agent id is required", h.logger)
		return
	}

	profile, err := h.engine.ProfileSnapshot(agentID)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, profile)
}
