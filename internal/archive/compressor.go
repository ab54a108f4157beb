// Package archive implements background directory compression. Jobs are
// fire-and-forget: admission registers a task and returns immediately, and
// progress is observable through the task registry until the job reaches
// 100 (success) or -1 (failure).
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/storagepod/storagepod/internal/fsops"
	"github.com/storagepod/storagepod/internal/infrastructure/monitoring"
	"github.com/storagepod/storagepod/internal/task"
)

// Format selects the archive container written by a job.
type Format string

const (
	FormatZip   Format = "zip"
	FormatTarGz Format = "tar.gz"
)

// Job describes an admitted compression job.
type Job struct {
	TaskID      string `json:"task_id"`
	ArchivePath string `json:"archive_path"`
}

// Compressor runs directory compression jobs in the background.
type Compressor struct {
	sandbox  fsops.Sandbox
	registry *task.Registry
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewCompressor wires a compressor over the sandbox and task registry.
func NewCompressor(sandbox fsops.Sandbox, registry *task.Registry, logger *zap.Logger) *Compressor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compressor{sandbox: sandbox, registry: registry, logger: logger}
}

// WithMetrics attaches the metrics collector.
func (c *Compressor) WithMetrics(m *monitoring.Metrics) *Compressor {
	c.metrics = m
	return c
}

// Start validates the request, registers a task at 0%, and hands the work to
// a background goroutine. The archive is written as a sibling of the source
// directory, named after it.
func (c *Compressor) Start(path string, format Format) (Job, error) {
	if path == "" {
		return Job{}, fmt.Errorf("compress path required: %w", fsops.ErrBadRequest)
	}
	if format == "" {
		format = FormatZip
	}
	if format != FormatZip && format != FormatTarGz {
		return Job{}, fmt.Errorf("unsupported archive format %q: %w", format, fsops.ErrBadRequest)
	}

	abs, err := c.sandbox.Resolve(path)
	if err != nil {
		return Job{}, err
	}
	if abs == c.sandbox.Root {
		return Job{}, fmt.Errorf("cannot compress the storage root: %w", fsops.ErrBadRequest)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return Job{}, fmt.Errorf("compress %q: %w", path, fsops.ErrNotFound)
	}

	archiveAbs := abs + suffix(format)
	taskID := uuid.NewString()
	if err := c.registry.Create(task.Task{
		ID:       taskID,
		Kind:     task.KindCompress,
		Filename: filepath.Base(archiveAbs),
		Status:   task.StatusStarted,
	}); err != nil {
		return Job{}, fmt.Errorf("register compression task: %v: %w", err, fsops.ErrInternal)
	}

	go c.run(taskID, abs, archiveAbs, format)

	return Job{TaskID: taskID, ArchivePath: c.sandbox.Rel(archiveAbs)}, nil
}

// Progress returns the current percent for a compression task: 0-100, or -1
// once it has failed. Unknown ids fail with ErrNotFound.
func (c *Compressor) Progress(taskID string) (int, error) {
	snapshot := c.registry.Get(taskID)
	switch snapshot.Status {
	case task.StatusNotFound, task.StatusExpired:
		return 0, fmt.Errorf("compression task %s: %w", taskID, fsops.ErrNotFound)
	case task.StatusFailed:
		return -1, nil
	default:
		return snapshot.Percent, nil
	}
}

// run executes one job. Failures never escape this goroutine: they are
// recorded into the task's terminal state. A partially written archive is
// left on disk but its task is never reported successful.
func (c *Compressor) run(taskID, sourceAbs, archiveAbs string, format Format) {
	if c.metrics != nil {
		c.metrics.ArchiveJobsActive.Inc()
		defer c.metrics.ArchiveJobsActive.Dec()
	}

	files, err := enumerate(sourceAbs)
	if err != nil {
		c.fail(taskID, sourceAbs, err)
		return
	}

	if err := c.write(taskID, sourceAbs, archiveAbs, format, files); err != nil {
		c.fail(taskID, sourceAbs, err)
		return
	}

	c.registry.SetPercent(taskID, 100)
	c.registry.Complete(taskID)
	if c.metrics != nil {
		c.metrics.RecordTask(string(task.KindCompress), string(task.StatusDone))
	}
	c.logger.Info("archive written",
		zap.String("task_id", taskID),
		zap.String("archive", archiveAbs),
		zap.Int("files", len(files)))
}

func (c *Compressor) fail(taskID, sourceAbs string, err error) {
	c.registry.Fail(taskID, err.Error())
	if c.metrics != nil {
		c.metrics.RecordTask(string(task.KindCompress), string(task.StatusFailed))
	}
	c.logger.Error("compression failed",
		zap.String("task_id", taskID),
		zap.String("source", sourceAbs),
		zap.Error(err))
}

// enumerate collects every regular file under root, sorted for a stable
// archive layout and a deterministic progress sequence.
func enumerate(root string) ([]string, error) {
	// fastwalk invokes the callback from multiple workers.
	var mu sync.Mutex
	var files []string
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			mu.Lock()
			files = append(files, p)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (c *Compressor) write(taskID, sourceAbs, archiveAbs string, format Format, files []string) error {
	out, err := os.Create(archiveAbs)
	if err != nil {
		return err
	}
	defer out.Close()

	var add func(relPath, absPath string, info os.FileInfo) error
	var finish func() error

	switch format {
	case FormatTarGz:
		gz := gzip.NewWriter(out)
		tw := tar.NewWriter(gz)
		add = func(relPath, absPath string, info os.FileInfo) error {
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = relPath
			if err := tw.WriteHeader(header); err != nil {
				return err
			}
			return copyInto(tw, absPath)
		}
		finish = func() error {
			if err := tw.Close(); err != nil {
				return err
			}
			return gz.Close()
		}
	default:
		zw := zip.NewWriter(out)
		add = func(relPath, absPath string, info os.FileInfo) error {
			w, err := zw.Create(relPath)
			if err != nil {
				return err
			}
			return copyInto(w, absPath)
		}
		finish = zw.Close
	}

	total := len(files)
	for i, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(sourceAbs, file)
		if err != nil {
			return err
		}
		if err := add(relPath, file, info); err != nil {
			return err
		}
		c.registry.SetPercent(taskID, (i+1)*100/total)
	}

	if err := finish(); err != nil {
		return err
	}
	return out.Close()
}

func copyInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func suffix(format Format) string {
	if format == FormatTarGz {
		return ".tar.gz"
	}
	return ".zip"
}
