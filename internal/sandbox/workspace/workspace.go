// Package workspace owns the scratch directory and the per-request artifact
// scopes that guarantee cleanup.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"execbox/internal/sandbox/ident"
	appErr "execbox/pkg/errors"
	"execbox/pkg/utils/logger"

	"go.uber.org/zap"
)

const dirMode fs.FileMode = 0o700

// Kind classifies an artifact.
type Kind string

const (
	KindScratch Kind = "scratch"
	KindSource  Kind = "source"
	KindBinary  Kind = "binary"
)

// Artifact is a filesystem entry owned by exactly one request.
type Artifact struct {
	Path string
	Kind Kind
	// Seq is the logical creation order within the scope.
	Seq int
}

// Workspace is the root scratch directory shared by all requests.
type Workspace struct {
	dir string
}

// New prepares dir as a private scratch root.
func New(dir string) (*Workspace, error) {
	if dir == "" {
		return nil, appErr.ValidationError("scratch_dir", "required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve scratch dir: %w", err)
	}
	if err := os.MkdirAll(abs, dirMode); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat scratch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scratch dir %s is not a directory", abs)
	}
	if info.Mode().Perm() != dirMode {
		if err := os.Chmod(abs, dirMode); err != nil {
			return nil, fmt.Errorf("restrict scratch dir: %w", err)
		}
	}
	return &Workspace{dir: abs}, nil
}

// Dir returns the absolute scratch root.
func (w *Workspace) Dir() string {
	return w.dir
}

// Entries counts the entries directly under the scratch root.
func (w *Workspace) Entries() (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// NewScope creates the request directory for id and registers it first, so it
// is the last thing Release removes. An existing directory is never adopted.
func (w *Workspace) NewScope(id string) (*Scope, error) {
	if !ident.Valid(id) {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("invalid request identifier")
	}
	dir := filepath.Join(w.dir, id)
	if err := os.Mkdir(dir, dirMode); err != nil {
		return nil, appErr.Wrapf(err, appErr.ArtifactWriteFailed, "create request directory")
	}
	return &Scope{
		id:        id,
		dir:       dir,
		artifacts: []Artifact{{Path: dir, Kind: KindScratch}},
	}, nil
}

// Scope tracks every artifact of one request.
type Scope struct {
	id  string
	dir string

	mu        sync.Mutex
	artifacts []Artifact
	released  bool
}

// ID returns the request identifier.
func (s *Scope) ID() string {
	return s.id
}

// Dir returns the request directory.
func (s *Scope) Dir() string {
	return s.dir
}

// Artifacts returns a snapshot in creation order.
func (s *Scope) Artifacts() []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Artifact, len(s.artifacts))
	copy(out, s.artifacts)
	return out
}

func (s *Scope) register(kind Kind, path string) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return Artifact{}, appErr.New(appErr.SupervisorInternalError).WithMessage("scope already released")
	}
	a := Artifact{Path: path, Kind: kind, Seq: len(s.artifacts)}
	s.artifacts = append(s.artifacts, a)
	return a, nil
}

// WriteSource writes src to a new file in the request directory. The path is
// registered before the file is created.
func (s *Scope) WriteSource(src []byte, ext string) (Artifact, error) {
	a, err := s.register(KindSource, filepath.Join(s.dir, s.id+ext))
	if err != nil {
		return Artifact{}, err
	}
	f, err := os.OpenFile(a.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Artifact{}, appErr.Wrapf(err, appErr.ArtifactWriteFailed, "create source file")
	}
	if _, err := f.Write(src); err != nil {
		_ = f.Close()
		return Artifact{}, appErr.Wrapf(err, appErr.ArtifactWriteFailed, "write source file")
	}
	if err := f.Close(); err != nil {
		return Artifact{}, appErr.Wrapf(err, appErr.ArtifactWriteFailed, "close source file")
	}
	return a, nil
}

// ReserveBinary registers the compiler output path. Nothing is created.
func (s *Scope) ReserveBinary() (Artifact, error) {
	return s.register(KindBinary, filepath.Join(s.dir, s.id+".bin"))
}

// Release removes every registered artifact in reverse creation order.
// Missing entries count as removed; other failures are logged and skipped.
// Calls after the first are no-ops.
func (s *Scope) Release(ctx context.Context) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	artifacts := s.artifacts
	s.mu.Unlock()

	for i := len(artifacts) - 1; i >= 0; i-- {
		a := artifacts[i]
		var err error
		if a.Kind == KindScratch {
			// Sweeps compiler temporaries that were never registered.
			err = os.RemoveAll(a.Path)
		} else {
			err = os.Remove(a.Path)
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn(ctx, "remove artifact failed",
				zap.String("kind", string(a.Kind)),
				zap.Int("seq", a.Seq),
				zap.Error(err),
			)
		}
	}
}
