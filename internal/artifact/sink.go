// Package artifact persists run documents under <root>/project and renders
// their secondary formats.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// ProjectDir is the folder under the run root that holds every artifact.
const ProjectDir = "project"

// Sink stores artifacts by path relative to the project folder. Every method
// returns the location it touched.
type Sink interface {
	WriteText(ctx context.Context, rel, content string) (string, error)
	ReadText(ctx context.Context, rel string) (string, error)
	WriteBinary(ctx context.Context, rel string, data []byte) (string, error)
	// RenderSecondary renders the text artifact rel into the secondary
	// format next to it, for example plan.md into plan.pdf.
	RenderSecondary(ctx context.Context, rel string) (string, error)
}

// SecondaryRenderer converts a markdown document into another format.
type SecondaryRenderer interface {
	Render(markdown string) ([]byte, error)
	Ext() string
}

// SinkError reports a failed artifact operation.
type SinkError struct {
	Op   string
	Path string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("artifact: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// FSSink is a Sink on top of afs, so the run root may be a local directory
// or any URL afs understands.
type FSSink struct {
	fs        afs.Service
	base      string
	secondary SecondaryRenderer
	logger    *slog.Logger
}

// FSOption configures an FSSink.
type FSOption func(*FSSink)

// WithSecondary sets the secondary-format renderer. The default is the PDF
// renderer.
func WithSecondary(r SecondaryRenderer) FSOption {
	return func(s *FSSink) { s.secondary = r }
}

// WithSinkLogger sets the logger.
func WithSinkLogger(l *slog.Logger) FSOption {
	return func(s *FSSink) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFSSink creates a sink writing under <root>/project.
func NewFSSink(root string, opts ...FSOption) *FSSink {
	s := &FSSink{
		fs:        afs.New(),
		base:      url.Join(url.Normalize(root, file.Scheme), ProjectDir),
		secondary: NewPDFRenderer(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Base returns the project folder URL.
func (s *FSSink) Base() string { return s.base }

// Location returns the local path for rel.
func (s *FSSink) Location(rel string) string {
	return url.Path(url.Join(s.base, rel))
}

// WriteText implements Sink.
func (s *FSSink) WriteText(ctx context.Context, rel, content string) (string, error) {
	return s.upload(ctx, "write", rel, []byte(content))
}

// WriteBinary implements Sink.
func (s *FSSink) WriteBinary(ctx context.Context, rel string, data []byte) (string, error) {
	return s.upload(ctx, "write", rel, data)
}

// ReadText implements Sink.
func (s *FSSink) ReadText(ctx context.Context, rel string) (string, error) {
	target, err := s.resolve(rel)
	if err != nil {
		return "", &SinkError{Op: "read", Path: rel, Err: err}
	}
	data, err := s.fs.DownloadWithURL(ctx, target)
	if err != nil {
		return "", &SinkError{Op: "read", Path: url.Path(target), Err: err}
	}
	return string(data), nil
}

// RenderSecondary implements Sink.
func (s *FSSink) RenderSecondary(ctx context.Context, rel string) (string, error) {
	if s.secondary == nil {
		return "", &SinkError{Op: "render", Path: rel, Err: fmt.Errorf("no secondary renderer configured")}
	}
	content, err := s.ReadText(ctx, rel)
	if err != nil {
		return "", err
	}
	data, err := s.secondary.Render(content)
	if err != nil {
		return "", &SinkError{Op: "render", Path: rel, Err: err}
	}
	out := strings.TrimSuffix(rel, path.Ext(rel)) + s.secondary.Ext()
	return s.upload(ctx, "render", out, data)
}

func (s *FSSink) upload(ctx context.Context, op, rel string, data []byte) (string, error) {
	target, err := s.resolve(rel)
	if err != nil {
		return "", &SinkError{Op: op, Path: rel, Err: err}
	}
	dir := s.base
	if d := path.Dir(path.Clean(rel)); d != "." {
		dir = url.Join(s.base, d)
	}
	if ok, _ := s.fs.Exists(ctx, dir); !ok {
		if err := s.fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return "", &SinkError{Op: op, Path: url.Path(dir), Err: err}
		}
	}
	if err := s.fs.Upload(ctx, target, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", &SinkError{Op: op, Path: url.Path(target), Err: err}
	}
	s.logger.Debug("artifact saved", "path", url.Path(target), "bytes", len(data))
	return url.Path(target), nil
}

// resolve maps rel into the project folder, refusing paths that escape it.
func (s *FSSink) resolve(rel string) (string, error) {
	rel = strings.ReplaceAll(rel, "\\", "/")
	if strings.TrimSpace(rel) == "" || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("artifact path %q must be relative", rel)
	}
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return "", fmt.Errorf("artifact path %q escapes the project folder", rel)
		}
	}
	return url.Join(s.base, path.Clean(rel)), nil
}
