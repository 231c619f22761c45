// Package upload sends documents to the backend for indexing, one at a
// time, and keeps the list of indexed documents.
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kalambet/buddy/internal/gateway"
)

// AllowedExtensions are the file types the backend indexes.
var AllowedExtensions = []string{".pdf", ".docx", ".doc", ".txt"}

// Status is the outcome of one file in a batch.
type Status int

const (
	StatusRejected Status = iota
	StatusUploaded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRejected:
		return "rejected"
	case StatusUploaded:
		return "uploaded"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// File is one entry of an upload batch.
type File struct {
	// Name is sent to the backend and shown to the user.
	Name string
	// Path is read from disk when the file's turn comes.
	Path string
}

// FromPaths builds a batch from filesystem paths, keeping their order.
func FromPaths(paths ...string) []File {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		files = append(files, File{Name: filepath.Base(p), Path: p})
	}
	return files
}

// Outcome reports what happened to one file.
type Outcome struct {
	File    File
	Status  Status
	Chunks  int
	Pages   int
	Message string
	Err     error
}

// Gateway is the upload call of the backend client.
type Gateway interface {
	UploadDocument(ctx context.Context, filename string, content io.Reader) (gateway.UploadResult, error)
}

// Reporter receives each outcome as soon as it is known.
type Reporter func(Outcome)

// Coordinator uploads batches strictly in order.
type Coordinator struct {
	gw  Gateway
	lib *Library
	log *slog.Logger

	// batchMu keeps batches from interleaving; the backend indexes into a
	// shared store.
	batchMu sync.Mutex
}

// NewCoordinator creates a Coordinator. lib may be nil when no document
// list is shown.
func NewCoordinator(gw Gateway, lib *Library, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{gw: gw, lib: lib, log: logger}
}

// Allowed reports whether name has an accepted extension.
func Allowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// Upload processes files in order. A rejected or failed file never stops
// the rest of the batch. report may be nil.
func (c *Coordinator) Upload(ctx context.Context, files []File, report Reporter) []Outcome {
	c.batchMu.Lock()
	defer c.batchMu.Unlock()

	outcomes := make([]Outcome, 0, len(files))
	for _, f := range files {
		o := c.uploadOne(ctx, f)
		c.log.InfoContext(ctx, "upload", "file", f.Name, "status", o.Status.String(), "chunks", o.Chunks)
		outcomes = append(outcomes, o)
		if report != nil {
			report(o)
		}
	}
	return outcomes
}

func (c *Coordinator) uploadOne(ctx context.Context, f File) Outcome {
	if !Allowed(f.Name) {
		return Outcome{
			File:    f,
			Status:  StatusRejected,
			Message: fmt.Sprintf("File %q is not supported. Allowed types: %s", f.Name, strings.Join(AllowedExtensions, ", ")),
		}
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return failed(f, fmt.Errorf("opening %s: %w", f.Name, err), err.Error())
	}
	defer fh.Close()

	pages := 0
	if strings.EqualFold(filepath.Ext(f.Name), ".pdf") {
		// Page counting is informational; the backend has the final say on
		// whether a PDF can be indexed.
		if pages, err = pdfPages(fh); err != nil {
			c.log.WarnContext(ctx, "counting PDF pages", "file", f.Name, "error", err)
			pages = 0
		}
		if _, err := fh.Seek(0, io.SeekStart); err != nil {
			return failed(f, fmt.Errorf("rewinding %s: %w", f.Name, err), err.Error())
		}
	}

	res, err := c.gw.UploadDocument(ctx, f.Name, fh)
	if err != nil {
		o := failed(f, err, gateway.Reason(err))
		o.Pages = pages
		return o
	}

	if c.lib != nil {
		_ = c.lib.Refresh(ctx)
	}
	return Outcome{
		File:    f,
		Status:  StatusUploaded,
		Chunks:  res.ChunksCreated,
		Pages:   pages,
		Message: fmt.Sprintf("Successfully uploaded %q (%d chunks created)", f.Name, res.ChunksCreated),
	}
}

func failed(f File, err error, reason string) Outcome {
	prefix := "Failed to upload"
	if gateway.IsTransport(err) {
		prefix = "Error uploading"
	}
	return Outcome{
		File:    f,
		Status:  StatusFailed,
		Err:     err,
		Message: fmt.Sprintf("%s %q: %s", prefix, f.Name, reason),
	}
}
