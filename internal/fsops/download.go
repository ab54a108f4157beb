package fsops

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DownloadInfo tells the boundary layer how to serve a file: where it lives,
// what content type to declare, and whether the browser may render it in
// place instead of downloading it.
type DownloadInfo struct {
	AbsPath     string
	Name        string
	Size        int64
	ContentType string
	Inline      bool
}

// Download resolves a file for serving. Directories and empty paths are
// rejected. Inline rendering is only offered for images, PDFs, and text when
// the caller asked for it; everything else is an attachment.
func (o *Operator) Download(path string, inline bool) (DownloadInfo, error) {
	if path == "" {
		return DownloadInfo{}, fmt.Errorf("download path required: %w", ErrBadRequest)
	}

	abs, err := o.sandbox.Resolve(path)
	if err != nil {
		return DownloadInfo{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return DownloadInfo{}, fmt.Errorf("download %q: %w", path, ErrNotFound)
	}
	if info.IsDir() {
		return DownloadInfo{}, fmt.Errorf("download %q: is a directory: %w", path, ErrInvalidDestination)
	}

	contentType := contentTypeFor(abs)
	return DownloadInfo{
		AbsPath:     abs,
		Name:        info.Name(),
		Size:        info.Size(),
		ContentType: contentType,
		Inline:      inline && renderableInline(contentType),
	}, nil
}

// contentTypeFor resolves by extension first and falls back to content
// sniffing for files without a known one.
func contentTypeFor(abs string) string {
	if byExt := mime.TypeByExtension(filepath.Ext(abs)); byExt != "" {
		return byExt
	}
	if mtype, err := mimetype.DetectFile(abs); err == nil {
		return mtype.String()
	}
	return "application/octet-stream"
}

func renderableInline(contentType string) bool {
	return strings.HasPrefix(contentType, "image/") ||
		strings.HasPrefix(contentType, "text/") ||
		strings.HasPrefix(contentType, "application/pdf")
}
