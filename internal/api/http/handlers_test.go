package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storagepod/storagepod/internal/archive"
	"github.com/storagepod/storagepod/internal/catalog"
	"github.com/storagepod/storagepod/internal/fsops"
	"github.com/storagepod/storagepod/internal/task"
	"github.com/storagepod/storagepod/internal/upload"
)

func newTestRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	sandbox := fsops.NewSandbox(root)
	store := catalog.NewMemoryStore()
	registry := task.NewRegistry(time.Hour)
	operator := fsops.NewOperator(sandbox, store, nil)
	pipeline := upload.NewPipeline(sandbox, upload.NewGate(1), registry, store, nil, 0)
	compressor := archive.NewCompressor(sandbox, registry, nil)

	h := NewHandlers(operator, pipeline, compressor, registry, store, nil, nil)

	router := gin.New()
	router.GET("/health", h.Health)
	files := router.Group("/api/v1/files")
	{
		files.GET("", h.List)
		files.DELETE("", h.Delete)
		files.POST("/folder", h.CreateFolder)
		files.POST("/rename", h.Rename)
		files.POST("/move", h.Move)
		files.POST("/copy", h.Copy)
		files.GET("/download", h.Download)
		files.GET("/search", h.Search)
		files.POST("/upload", h.Upload)
		files.GET("/upload/:id", h.UploadProgress)
		files.POST("/compress", h.Compress)
		files.GET("/compress/:id", h.CompressProgress)
	}
	return router, root
}

func doJSON(router *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestListEndpoint(t *testing.T) {
	router, root := newTestRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))

	w := doJSON(router, http.MethodGet, "/api/v1/files?path=", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listing fsops.Listing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Equal(t, "", listing.CurrentPath)
	assert.Nil(t, listing.ParentDirectory)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, "a.txt", listing.Files[0].Name)
}

// TestErrorStatusMapping walks each domain error through the boundary and
// checks the HTTP status it maps to.
func TestErrorStatusMapping(t *testing.T) {
	router, root := newTestRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))

	// Traversal → 403.
	w := doJSON(router, http.MethodGet, "/api/v1/files?path=../etc", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Missing directory → 404.
	w = doJSON(router, http.MethodGet, "/api/v1/files?path=ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Listing a file → 400.
	w = doJSON(router, http.MethodGet, "/api/v1/files?path=a.txt", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Duplicate folder → 409.
	w = doJSON(router, http.MethodPost, "/api/v1/files/folder", gin.H{"path": "", "name": "dir"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(router, http.MethodPost, "/api/v1/files/folder", gin.H{"path": "", "name": "dir"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Bad name → 400.
	w = doJSON(router, http.MethodPost, "/api/v1/files/folder", gin.H{"path": "", "name": "a/b"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Delete without a path → 400.
	w = doJSON(router, http.MethodDelete, "/api/v1/files", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenameMoveEndpoints(t *testing.T) {
	router, root := newTestRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dst"), 0o755))

	w := doJSON(router, http.MethodPost, "/api/v1/files/rename", gin.H{"path": "a.txt", "new_name": "b.txt"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.FileExists(t, filepath.Join(root, "b.txt"))

	w = doJSON(router, http.MethodPost, "/api/v1/files/move", gin.H{"source": "b.txt", "destination": "dst"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.FileExists(t, filepath.Join(root, "dst", "b.txt"))

	// Renaming a directory while claiming it is a file → 400.
	w = doJSON(router, http.MethodPost, "/api/v1/files/rename", gin.H{"path": "dst", "new_name": "dst2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/files/copy", gin.H{"source": "dst", "destination": ""})
	assert.Equal(t, http.StatusConflict, w.Code, "copying a directory onto itself must conflict")

	// Copying a directory into its own subtree → 400.
	w = doJSON(router, http.MethodPost, "/api/v1/files/folder", gin.H{"path": "dst", "name": "inner"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(router, http.MethodPost, "/api/v1/files/copy", gin.H{"source": "dst", "destination": "dst/inner"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadEndpoint(t *testing.T) {
	router, root := newTestRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.txt"), []byte("hello"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/download?path=doc.txt", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "doc.txt")
}

func TestUploadEndpoint(t *testing.T) {
	router, root := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "upload.bin")
	require.NoError(t, err)
	_, err = part.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/upload?path=", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var result upload.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotEmpty(t, result.TaskID)
	assert.Equal(t, "upload.bin", result.Filename)
	assert.FileExists(t, filepath.Join(root, "upload.bin"))

	// Progress endpoint knows the finished task.
	w = doJSON(router, http.MethodGet, "/api/v1/files/upload/"+result.TaskID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"done"`)

	// Unknown task id → 404.
	w = doJSON(router, http.MethodGet, "/api/v1/files/upload/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadEndpointWithoutMultipart(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/upload", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompressEndpoint(t *testing.T) {
	router, root := newTestRouter(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "bundle"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bundle", "f.txt"), []byte("x"), 0o644))

	w := doJSON(router, http.MethodPost, "/api/v1/files/compress", gin.H{"path": "bundle"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var job archive.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.NotEmpty(t, job.TaskID)
	assert.Equal(t, "bundle.zip", job.ArchivePath)

	require.Eventually(t, func() bool {
		w := doJSON(router, http.MethodGet, "/api/v1/files/compress/"+job.TaskID, nil)
		return w.Code == http.StatusOK && strings.Contains(w.Body.String(), `"progress":100`)
	}, 5*time.Second, 20*time.Millisecond)

	// Unknown task id → 404.
	w = doJSON(router, http.MethodGet, "/api/v1/files/compress/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchEndpoint(t *testing.T) {
	router, root := newTestRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "findme.txt"), []byte("x"), 0o644))

	// Index via the folder route so the catalog write-through runs.
	w := doJSON(router, http.MethodPost, "/api/v1/files/folder", gin.H{"path": "", "name": "findable"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/files/search?q=findable", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results []fsops.Record `json:"results"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "findable", resp.Results[0].Name)
}
