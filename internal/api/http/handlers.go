// Package http is the HTTP boundary of the file service. Handlers stay thin:
// they bind requests, call the core packages, and translate domain errors
// into status codes. No filesystem logic lives here.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storagepod/storagepod/internal/archive"
	"github.com/storagepod/storagepod/internal/catalog"
	"github.com/storagepod/storagepod/internal/fsops"
	"github.com/storagepod/storagepod/internal/infrastructure/monitoring"
	"github.com/storagepod/storagepod/internal/task"
	"github.com/storagepod/storagepod/internal/upload"
)

// Handlers bundles the core collaborators behind the HTTP surface.
type Handlers struct {
	operator   *fsops.Operator
	pipeline   *upload.Pipeline
	compressor *archive.Compressor
	registry   *task.Registry
	store      catalog.Store
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// NewHandlers creates the handler set. store and metrics may be nil.
func NewHandlers(
	operator *fsops.Operator,
	pipeline *upload.Pipeline,
	compressor *archive.Compressor,
	registry *task.Registry,
	store catalog.Store,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		operator:   operator,
		pipeline:   pipeline,
		compressor: compressor,
		registry:   registry,
		store:      store,
		metrics:    metrics,
		logger:     logger,
	}
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "storagepod"})
}

// List enumerates one directory level.
func (h *Handlers) List(c *gin.Context) {
	path := c.Query("path")

	listing, err := h.operator.List(path)
	h.recordFileOp("list", err)
	if err != nil {
		h.respondError(c, "list", err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// CreateFolder creates a directory inside an existing one.
func (h *Handlers) CreateFolder(c *gin.Context) {
	var req struct {
		Path string `json:"path"`
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	rec, err := h.operator.CreateDir(c.Request.Context(), req.Path, req.Name)
	h.recordFileOp("create_folder", err)
	if err != nil {
		h.respondError(c, "create_folder", err)
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// Delete removes a file or directory tree.
func (h *Handlers) Delete(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	err := h.operator.Delete(c.Request.Context(), path)
	h.recordFileOp("delete", err)
	if err != nil {
		h.respondError(c, "delete", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": path})
}

// Rename gives an entry a new name in place.
func (h *Handlers) Rename(c *gin.Context) {
	var req struct {
		Path        string `json:"path" binding:"required"`
		NewName     string `json:"new_name" binding:"required"`
		IsDirectory bool   `json:"is_directory"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	rec, err := h.operator.Rename(c.Request.Context(), req.Path, req.IsDirectory, req.NewName)
	h.recordFileOp("rename", err)
	if err != nil {
		h.respondError(c, "rename", err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// Move relocates an entry into a destination directory.
func (h *Handlers) Move(c *gin.Context) {
	h.transfer(c, "move", h.operator.Move)
}

// Copy duplicates an entry into a destination directory.
func (h *Handlers) Copy(c *gin.Context) {
	h.transfer(c, "copy", h.operator.Copy)
}

func (h *Handlers) transfer(c *gin.Context, op string, apply func(ctx context.Context, src, dst string) (fsops.Record, error)) {
	var req struct {
		Source      string `json:"source" binding:"required"`
		Destination string `json:"destination"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	rec, err := apply(c.Request.Context(), req.Source, req.Destination)
	h.recordFileOp(op, err)
	if err != nil {
		h.respondError(c, op, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// Download serves a file as an attachment, or inline when the client asks and
// the content type is renderable.
func (h *Handlers) Download(c *gin.Context) {
	path := c.Query("path")
	inline := c.Query("inline") == "true"

	info, err := h.operator.Download(path, inline)
	h.recordFileOp("download", err)
	if err != nil {
		h.respondError(c, "download", err)
		return
	}

	disposition := "attachment"
	if info.Inline {
		disposition = "inline"
	}
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, info.Name))
	c.Header("Content-Type", info.ContentType)
	c.File(info.AbsPath)
}

// Search queries the metadata catalog.
func (h *Handlers) Search(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog is disabled"})
		return
	}

	var q catalog.Query
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}
	q.Normalize()

	records, err := h.store.Search(c.Request.Context(), q)
	h.recordFileOp("search", err)
	if err != nil {
		h.respondError(c, "search", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": records, "count": len(records)})
}

// Upload streams one multipart file into a sandboxed directory. The response
// carries the task id even on failure so clients can inspect the task.
func (h *Handlers) Upload(c *gin.Context) {
	path := c.Query("path")

	mr, err := c.Request.MultipartReader()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart body required: " + err.Error()})
		return
	}

	result, err := h.pipeline.Save(c.Request.Context(), path, mr)
	h.recordFileOp("upload", err)
	if err != nil {
		status := statusFor(err)
		body := gin.H{"error": publicMessage(err, status)}
		if result.TaskID != "" {
			body["task_id"] = result.TaskID
		}
		h.logError("upload", err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// UploadProgress returns the current snapshot of an upload task.
func (h *Handlers) UploadProgress(c *gin.Context) {
	snapshot := h.registry.Get(c.Param("id"))
	if snapshot.Status == task.StatusNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown task", "task_id": snapshot.ID})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// Compress starts a background compression job.
func (h *Handlers) Compress(c *gin.Context) {
	var req struct {
		Path   string `json:"path" binding:"required"`
		Format string `json:"format"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	job, err := h.compressor.Start(req.Path, archive.Format(req.Format))
	h.recordFileOp("compress", err)
	if err != nil {
		h.respondError(c, "compress", err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// CompressProgress returns the percent for a compression task, -1 on failure.
func (h *Handlers) CompressProgress(c *gin.Context) {
	taskID := c.Param("id")

	percent, err := h.compressor.Progress(taskID)
	if err != nil {
		h.respondError(c, "compress_progress", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "progress": percent})
}

func (h *Handlers) recordFileOp(op string, err error) {
	if h.metrics != nil {
		h.metrics.RecordFileOp(op, err)
	}
}

// respondError maps domain errors to status codes. Internal causes are logged
// but never leaked to the client.
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	h.logError(op, err)
	c.JSON(status, gin.H{"error": publicMessage(err, status)})
}

func (h *Handlers) logError(op string, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("operation failed", zap.String("operation", op), zap.Error(err))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fsops.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, fsops.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fsops.ErrAlreadyExists), errors.Is(err, fsops.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, fsops.ErrInvalidName),
		errors.Is(err, fsops.ErrInvalidDestination),
		errors.Is(err, fsops.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, fsops.ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
