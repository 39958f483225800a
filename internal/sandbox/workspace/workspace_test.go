package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"execbox/internal/sandbox/ident"
	appErr "execbox/pkg/errors"
)

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := New(filepath.Join(t.TempDir(), "scratch"))
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	return ws
}

func newID(t *testing.T) string {
	t.Helper()
	id, err := ident.New()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	return id
}

func entries(t *testing.T, ws *Workspace) int {
	t.Helper()
	n, err := ws.Entries()
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	return n
}

func TestNewRestrictsPermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scratch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ws, err := New(dir)
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	info, err := os.Stat(ws.Dir())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf("scratch dir mode = %v, want 0700", info.Mode().Perm())
	}
}

func TestNewRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("expected error for non-directory scratch root")
	}
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty scratch root")
	}
}

func TestScopeLifecycle(t *testing.T) {
	ws := newWorkspace(t)
	before := entries(t, ws)

	scope, err := ws.NewScope(newID(t))
	if err != nil {
		t.Fatalf("new scope: %v", err)
	}
	src, err := scope.WriteSource([]byte("int main(void) { return 0; }\n"), ".c")
	if err != nil {
		t.Fatalf("write source: %v", err)
	}
	info, err := os.Stat(src.Path)
	if err != nil {
		t.Fatalf("stat source: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("source mode = %v, want 0600", info.Mode().Perm())
	}
	bin, err := scope.ReserveBinary()
	if err != nil {
		t.Fatalf("reserve binary: %v", err)
	}
	if err := os.WriteFile(bin.Path, []byte("ELF"), 0o700); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	// Compiler temporaries are not registered but live in the request dir.
	if err := os.WriteFile(filepath.Join(scope.Dir(), "cc123.o"), nil, 0o600); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	arts := scope.Artifacts()
	if len(arts) != 3 {
		t.Fatalf("artifacts = %d, want 3", len(arts))
	}
	for i, want := range []Kind{KindScratch, KindSource, KindBinary} {
		if arts[i].Kind != want || arts[i].Seq != i {
			t.Fatalf("artifact %d = %+v, want kind %s seq %d", i, arts[i], want, i)
		}
	}

	scope.Release(context.Background())
	if got := entries(t, ws); got != before {
		t.Fatalf("scratch entries after release = %d, want %d", got, before)
	}

	// Second release is a no-op.
	scope.Release(context.Background())

	if _, err := scope.WriteSource([]byte("x"), ".c"); appErr.GetCode(err) != appErr.SupervisorInternalError {
		t.Fatalf("write after release error = %v", err)
	}
}

func TestReleaseToleratesMissingArtifacts(t *testing.T) {
	ws := newWorkspace(t)
	scope, err := ws.NewScope(newID(t))
	if err != nil {
		t.Fatalf("new scope: %v", err)
	}
	if _, err := scope.ReserveBinary(); err != nil {
		t.Fatalf("reserve binary: %v", err)
	}
	// The binary was never produced.
	scope.Release(context.Background())
	if got := entries(t, ws); got != 0 {
		t.Fatalf("scratch entries = %d, want 0", got)
	}
}

func TestWriteSourceIsExclusive(t *testing.T) {
	ws := newWorkspace(t)
	id := newID(t)
	scope, err := ws.NewScope(id)
	if err != nil {
		t.Fatalf("new scope: %v", err)
	}
	defer scope.Release(context.Background())

	planted := filepath.Join(scope.Dir(), id+".c")
	if err := os.WriteFile(planted, []byte("planted"), 0o600); err != nil {
		t.Fatalf("plant: %v", err)
	}
	if _, err := scope.WriteSource([]byte("x"), ".c"); appErr.GetCode(err) != appErr.ArtifactWriteFailed {
		t.Fatalf("error = %v, want ArtifactWriteFailed", err)
	}
}

func TestNewScopeNeverAdoptsExistingDir(t *testing.T) {
	ws := newWorkspace(t)
	id := newID(t)
	other := filepath.Join(ws.Dir(), id)
	if err := os.Mkdir(other, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	marker := filepath.Join(other, "keep")
	if err := os.WriteFile(marker, nil, 0o600); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if _, err := ws.NewScope(id); appErr.GetCode(err) != appErr.ArtifactWriteFailed {
		t.Fatalf("error = %v, want ArtifactWriteFailed", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("existing directory was touched: %v", err)
	}
}

func TestNewScopeRejectsBadIdentifier(t *testing.T) {
	ws := newWorkspace(t)
	for _, id := range []string{"", "../etc", "ABC"} {
		if _, err := ws.NewScope(id); err == nil {
			t.Fatalf("expected error for id %q", id)
		}
	}
}
