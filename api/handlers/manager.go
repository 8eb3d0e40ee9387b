package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/manager"
	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// 🗄️ 记忆管理 Handler
// =============================================================================

// ManagerHandler 记忆生命周期管理处理器
type ManagerHandler struct {
	manager *manager.Manager
	logger  *zap.Logger
}

// NewManagerHandler 创建管理处理器
func NewManagerHandler(m *manager.Manager, logger *zap.Logger) *ManagerHandler {
	return &ManagerHandler{
		manager: m,
		logger:  logger.With(zap.String("component", "manager_handler")),
	}
}

// HandleOptimize 处理 POST /api/v1/memory/optimize
func (h *ManagerHandler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.RunOptimization(r.Context())
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, result)
}

// HandleHealth 处理 GET /api/v1/memory/health
func (h *ManagerHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.manager.Health())
}

// HandleBackup 处理 GET /api/v1/memory/backup
// 以 JSON 流的形式导出关键条目。
func (h *ManagerHandler) HandleBackup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="memflow-backup.json"`)

	count, err := h.manager.WriteBackup(r.Context(), w, nil)
	if err != nil {
		// 响应头已写出，只能记录日志
		h.logger.Error("backup export failed", zap.Error(err))
		return
	}

	h.logger.Info("backup exported", zap.Int("entries", count))
}

// HandleRestore 处理 POST /api/v1/memory/restore
func (h *ManagerHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		WriteErrorMessage(w, types.ErrValidation, "request body is empty", h.logger)
		return
	}

	restored, err := h.manager.RestoreBackup(r.Context(), r.Body)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]int{"restored": restored})
}
