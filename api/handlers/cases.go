package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/casebase"
	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// 📚 案例推理 Handler
// =============================================================================

// CaseHandler 案例推理处理器
type CaseHandler struct {
	reasoner *casebase.Reasoner
	logger   *zap.Logger
}

// NewCaseHandler 创建案例处理器
func NewCaseHandler(reasoner *casebase.Reasoner, logger *zap.Logger) *CaseHandler {
	return &CaseHandler{
		reasoner: reasoner,
		logger:   logger.With(zap.String("component", "case_handler")),
	}
}

// HandleAdd 处理 POST /api/v1/cases
func (h *CaseHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var c types.ComplianceCase
	if err := DecodeJSONBody(w, r, &c, h.logger); err != nil {
		return
	}

	if err := h.reasoner.AddCase(r.Context(), &c); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"case_id": c.CaseID})
}

// HandleGet 处理 GET /api/v1/cases/{id}
func (h *CaseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("id")
	if caseID == "" {
		WriteErrorMessage(w, types.ErrValidation, "case id is required", h.logger)
		return
	}

	c, err := h.reasoner.GetCase(r.Context(), caseID)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, c)
}

// HandleSearch 处理 POST /api/v1/cases/search
func (h *CaseHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var query types.CaseQuery
	if err := DecodeJSONBody(w, r, &query, h.logger); err != nil {
		return
	}

	results, err := h.reasoner.RetrieveSimilarCases(r.Context(), query)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, results)
}

// HandleAdapt 处理 POST /api/v1/cases/adapt
// 检索相似案例并通过加权投票适配到查询场景。
func (h *CaseHandler) HandleAdapt(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var query types.CaseQuery
	if err := DecodeJSONBody(w, r, &query, h.logger); err != nil {
		return
	}

	retrieved, err := h.reasoner.RetrieveSimilarCases(r.Context(), query)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	adapted, err := h.reasoner.AdaptCasesToScenario(r.Context(), query, retrieved)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, adapted)
}

// DecisionRequest 预测/验证请求
type DecisionRequest struct {
	Context  map[string]any `json:"context"`
	Decision map[string]any `json:"decision"`
}

// HandlePredict 处理 POST /api/v1/cases/predict
func (h *CaseHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req DecisionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	prediction, err := h.reasoner.PredictOutcome(r.Context(), req.Context, req.Decision)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, prediction)
}

// HandleValidate 处理 POST /api/v1/cases/validate
func (h *CaseHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req DecisionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	validation, err := h.reasoner.ValidateDecision(r.Context(), req.Context, req.Decision)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, validation)
}

// OutcomeRequest 案例结果更新请求
type OutcomeRequest struct {
	Outcome      map[string]any `json:"outcome"`
	SuccessScore float64        `json:"success_score"`
}

// HandleOutcome 处理 PUT /api/v1/cases/{id}/outcome
func (h *CaseHandler) HandleOutcome(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("id")
	if caseID == "" {
		WriteErrorMessage(w, types.ErrValidation, "case id is required", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req OutcomeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := h.reasoner.UpdateCaseOutcome(r.Context(), caseID, req.Outcome, req.SuccessScore); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"case_id": caseID, "status": "updated"})
}
