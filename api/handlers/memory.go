package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// 🧠 记忆存储 Handler
// =============================================================================

// MemoryHandler 记忆条目存取处理器
type MemoryHandler struct {
	store  *memory.Store
	logger *zap.Logger
}

// NewMemoryHandler 创建记忆处理器
func NewMemoryHandler(store *memory.Store, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{
		store:  store,
		logger: logger.With(zap.String("component", "memory_handler")),
	}
}

// HandleStore 处理 POST /api/v1/memory/entries
func (h *MemoryHandler) HandleStore(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var entry types.MemoryEntry
	if err := DecodeJSONBody(w, r, &entry, h.logger); err != nil {
		return
	}

	if err := h.store.Store(r.Context(), &entry); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"id": entry.ID})
}

// HandleGet 处理 GET /api/v1/memory/entries/{id}
func (h *MemoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteErrorMessage(w, types.ErrValidation, "entry id is required", h.logger)
		return
	}

	entry, err := h.store.Retrieve(r.Context(), id)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, entry)
}

// HandleDelete 处理 DELETE /api/v1/memory/entries/{id}
func (h *MemoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteErrorMessage(w, types.ErrValidation, "entry id is required", h.logger)
		return
	}

	if err := h.store.Remove(r.Context(), id); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"id": id, "status": "removed"})
}

// HandleSearch 处理 POST /api/v1/memory/search
func (h *MemoryHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var query types.RetrievalQuery
	if err := DecodeJSONBody(w, r, &query, h.logger); err != nil {
		return
	}

	results, err := h.store.RetrieveSimilar(r.Context(), query)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, results)
}

// HandleStats 处理 GET /api/v1/memory/stats
func (h *MemoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.store.Stats())
}
