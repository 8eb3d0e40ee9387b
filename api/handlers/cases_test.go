package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/casebase"
	"github.com/BaSui01/memflow/types"
)

func newCaseMux(t *testing.T) (*http.ServeMux, *casebase.Reasoner) {
	t.Helper()
	cfg := casebase.DefaultReasonerConfig()
	cfg.EmbeddingsEnabled = false
	cfg.PersistenceEnabled = false
	reasoner := casebase.NewReasoner(cfg, nil, nil, zap.NewNop(), nil)
	h := NewCaseHandler(reasoner, zap.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/cases", h.HandleAdd)
	mux.HandleFunc("GET /api/v1/cases/{id}", h.HandleGet)
	mux.HandleFunc("POST /api/v1/cases/search", h.HandleSearch)
	mux.HandleFunc("POST /api/v1/cases/adapt", h.HandleAdapt)
	mux.HandleFunc("POST /api/v1/cases/predict", h.HandlePredict)
	mux.HandleFunc("POST /api/v1/cases/validate", h.HandleValidate)
	mux.HandleFunc("PUT /api/v1/cases/{id}/outcome", h.HandleOutcome)
	return mux, reasoner
}

func seedCase(t *testing.T, reasoner *casebase.Reasoner, id string, success float64) {
	t.Helper()
	require.NoError(t, reasoner.AddCase(t.Context(), &types.ComplianceCase{
		CaseID:       id,
		Title:        "Suspicious transfer review " + id,
		Context:      map[string]any{"domain": "aml", "risk_level": "high"},
		Decision:     map[string]any{"action": "escalate"},
		Outcome:      map[string]any{"result": "confirmed"},
		SuccessScore: success,
	}))
}

func TestCaseHandler_AddAndGet(t *testing.T) {
	mux, _ := newCaseMux(t)

	w := postJSON(t, mux, "/api/v1/cases", types.ComplianceCase{
		CaseID:   "case-1",
		Title:    "Suspicious transfer review",
		Context:  map[string]any{"domain": "aml", "risk_level": "high"},
		Decision: map[string]any{"action": "escalate"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/cases/case-1", nil)
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                 `json:"success"`
		Data    types.ComplianceCase `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "aml", resp.Data.Domain)
}

func TestCaseHandler_AddRejectsInvalidCase(t *testing.T) {
	mux, _ := newCaseMux(t)

	w := postJSON(t, mux, "/api/v1/cases", types.ComplianceCase{CaseID: "case-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCaseHandler_SearchAndAdapt(t *testing.T) {
	mux, reasoner := newCaseMux(t)
	seedCase(t, reasoner, "case-1", 0.9)
	seedCase(t, reasoner, "case-2", 0.7)

	query := types.CaseQuery{
		Context:    map[string]any{"domain": "aml", "risk_level": "high"},
		MaxResults: 5,
	}

	w := postJSON(t, mux, "/api/v1/cases/search", query)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var searchResp struct {
		Success bool               `json:"success"`
		Data    []types.ScoredCase `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&searchResp))
	assert.Len(t, searchResp.Data, 2)

	w = postJSON(t, mux, "/api/v1/cases/adapt", query)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var adaptResp struct {
		Success bool                  `json:"success"`
		Data    types.AdaptedDecision `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&adaptResp))
	assert.Equal(t, "escalate", adaptResp.Data.Decision["action"])
	assert.Greater(t, adaptResp.Data.Confidence, 0.0)
}

func TestCaseHandler_PredictAndValidate(t *testing.T) {
	mux, reasoner := newCaseMux(t)
	seedCase(t, reasoner, "case-1", 0.9)

	req := DecisionRequest{
		Context:  map[string]any{"domain": "aml", "risk_level": "high"},
		Decision: map[string]any{"action": "escalate"},
	}

	w := postJSON(t, mux, "/api/v1/cases/predict", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var predictResp struct {
		Success bool                    `json:"success"`
		Data    types.OutcomePrediction `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&predictResp))
	assert.Equal(t, 1, predictResp.Data.CaseCount)
	assert.Equal(t, "confirmed", predictResp.Data.Outcome["result"])

	w = postJSON(t, mux, "/api/v1/cases/validate", req)
	require.Equal(t, http.StatusOK, w.Code)

	var validateResp struct {
		Success bool                     `json:"success"`
		Data    types.DecisionValidation `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&validateResp))
	assert.True(t, validateResp.Data.Valid)
}

func TestCaseHandler_Outcome(t *testing.T) {
	mux, reasoner := newCaseMux(t)
	seedCase(t, reasoner, "case-1", 0.5)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/api/v1/cases/case-1/outcome",
		jsonReader(t, OutcomeRequest{
			Outcome:      map[string]any{"result": "false_positive"},
			SuccessScore: 0.2,
		}))
	r.Header.Set("Content-Type", "application/json")
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	c, err := reasoner.GetCase(t.Context(), "case-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, c.SuccessScore, 1e-9)
}

func TestCaseHandler_OutcomeRejectsOutOfRangeScore(t *testing.T) {
	mux, reasoner := newCaseMux(t)
	seedCase(t, reasoner, "case-1", 0.5)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/api/v1/cases/case-1/outcome",
		jsonReader(t, OutcomeRequest{SuccessScore: 1.5}))
	r.Header.Set("Content-Type", "application/json")
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
