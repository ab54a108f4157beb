// Package upload implements the streaming upload pipeline: multipart bodies
// are written to a sandboxed destination incrementally, progress is reported
// through the task registry, and a global admission gate bounds concurrency.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/storagepod/storagepod/internal/fsops"
	"github.com/storagepod/storagepod/internal/infrastructure/monitoring"
	"github.com/storagepod/storagepod/internal/shared/id"
	"github.com/storagepod/storagepod/internal/task"
)

// DefaultProgressInterval is how many bytes are written between registry
// checkpoints. Progress is also reported unconditionally at start and finish.
const DefaultProgressInterval int64 = 16 << 20

const copyBufferSize = 512 << 10

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// Result reports a finished (or failed) upload admission.
type Result struct {
	TaskID   string `json:"task_id"`
	Filename string `json:"filename,omitempty"`
}

// Pipeline streams one multipart file per request to disk.
type Pipeline struct {
	sandbox          Sandbox
	gate             *Gate
	registry         *task.Registry
	catalog          fsops.Catalog
	logger           *zap.Logger
	metrics          *monitoring.Metrics
	progressInterval int64
}

// Sandbox is the path confinement contract the pipeline needs.
type Sandbox interface {
	Resolve(userPath string) (string, error)
	Describe(parentAbs, name string) (fsops.Record, error)
}

// NewPipeline wires a pipeline. catalog may be nil; progressInterval <= 0
// selects the default.
func NewPipeline(sandbox Sandbox, gate *Gate, registry *task.Registry, catalog fsops.Catalog, logger *zap.Logger, progressInterval int64) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if progressInterval <= 0 {
		progressInterval = DefaultProgressInterval
	}
	return &Pipeline{
		sandbox:          sandbox,
		gate:             gate,
		registry:         registry,
		catalog:          catalog,
		logger:           logger,
		progressInterval: progressInterval,
	}
}

// WithMetrics attaches the metrics collector.
func (p *Pipeline) WithMetrics(m *monitoring.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// SanitizeFilename strips directory components, replaces characters unsafe
// for cross-platform filenames with underscores, and rejects empty or
// dot-prefixed results.
func SanitizeFilename(name string) (string, error) {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("filename %q: %w", name, fsops.ErrInvalidName)
	}
	return name, nil
}

// Save streams exactly one file part from the multipart reader into the
// destination directory. The admission gate is held for the duration of the
// transfer and released on every exit path, including client disconnects.
// The returned Result carries the task id even when the upload fails, so
// callers can still surface the failed task to progress queries.
func (p *Pipeline) Save(ctx context.Context, destPath string, mr *multipart.Reader) (Result, error) {
	if !p.gate.TryAcquire() {
		return Result{}, fmt.Errorf("upload slots exhausted: %w", fsops.ErrTooManyRequests)
	}
	defer p.gate.Release()

	if p.metrics != nil {
		p.metrics.UploadsActive.Inc()
		defer p.metrics.UploadsActive.Dec()
	}

	destAbs, err := p.sandbox.Resolve(destPath)
	if err != nil {
		return Result{}, err
	}
	info, err := os.Stat(destAbs)
	if err != nil || !info.IsDir() {
		return Result{}, fmt.Errorf("upload destination %q: %w", destPath, fsops.ErrInvalidDestination)
	}

	taskID := id.NewTaskID().String()
	if err := p.registry.Create(task.Task{
		ID:     taskID,
		Kind:   task.KindUpload,
		Status: task.StatusUploading,
	}); err != nil {
		return Result{}, fmt.Errorf("register upload task: %v: %w", err, fsops.ErrInternal)
	}

	filename, written, err := p.receive(ctx, taskID, destAbs, mr)
	if err != nil {
		p.registry.Fail(taskID, err.Error())
		if p.metrics != nil {
			p.metrics.RecordTask(string(task.KindUpload), string(task.StatusFailed))
		}
		p.logger.Warn("upload failed",
			zap.String("task_id", taskID),
			zap.String("destination", destPath),
			zap.Error(err))
		return Result{TaskID: taskID}, err
	}

	p.registry.Complete(taskID)
	if p.metrics != nil {
		p.metrics.RecordTask(string(task.KindUpload), string(task.StatusDone))
		p.metrics.UploadedBytes.Add(float64(written))
	}
	p.writeThrough(ctx, destAbs, filename)
	return Result{TaskID: taskID, Filename: filename}, nil
}

// receive consumes the multipart stream and writes the single expected file
// part to disk, checkpointing progress as bytes arrive.
func (p *Pipeline) receive(ctx context.Context, taskID, destAbs string, mr *multipart.Reader) (string, int64, error) {
	part, err := nextFilePart(mr)
	if err != nil {
		return "", 0, err
	}
	defer part.Close()

	filename, err := SanitizeFilename(part.FileName())
	if err != nil {
		return "", 0, err
	}
	p.registry.Update(taskID, func(t *task.Task) { t.Filename = filename })

	target := filepath.Join(destAbs, filename)
	out, err := os.Create(target)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %v: %w", filename, err, fsops.ErrIO)
	}

	written, err := p.copyWithProgress(ctx, taskID, out, part)
	if err != nil {
		out.Close()
		os.Remove(target)
		return "", written, fmt.Errorf("stream %s after %d bytes: %v: %w", filename, written, err, fsops.ErrInternal)
	}
	if err := out.Close(); err != nil {
		os.Remove(target)
		return "", written, fmt.Errorf("close %s: %v: %w", filename, err, fsops.ErrIO)
	}

	p.registry.UpdateProgress(taskID, written, written)
	return filename, written, nil
}

// nextFilePart scans the multipart stream for the first part that carries a
// filename. A stream without one is a malformed upload request.
func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("no file part in upload body: %w", fsops.ErrBadRequest)
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart body: %v: %w", err, fsops.ErrBadRequest)
		}
		if part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func (p *Pipeline) copyWithProgress(ctx context.Context, taskID string, dst io.Writer, src io.Reader) (int64, error) {
	p.registry.UpdateProgress(taskID, 0, 0)

	buf := make([]byte, copyBufferSize)
	var written, lastCheckpoint int64

	for {
		if err := ctx.Err(); err != nil {
			return written, fmt.Errorf("client disconnected: %w", err)
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			if written-lastCheckpoint >= p.progressInterval {
				lastCheckpoint = written
				p.registry.UpdateProgress(taskID, written, 0)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, readErr
		}
	}
}

func (p *Pipeline) writeThrough(ctx context.Context, destAbs, filename string) {
	if p.catalog == nil {
		return
	}
	rec, err := p.sandbox.Describe(destAbs, filename)
	if err != nil {
		p.logger.Warn("describe uploaded file failed", zap.String("name", filename), zap.Error(err))
		return
	}
	if err := p.catalog.Put(ctx, rec); err != nil {
		p.logger.Warn("catalog write failed", zap.String("path", rec.Path), zap.Error(err))
	}
}
