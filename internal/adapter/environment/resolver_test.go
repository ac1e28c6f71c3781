package environment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termrun/internal/domain"
)

func makeProject(t *testing.T) (root, file string) {
	t.Helper()
	root = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644))
	sub := filepath.Join(root, "pkg", "deep")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	file = filepath.Join(sub, "main.go")
	require.NoError(t, os.WriteFile(file, []byte("package deep\n"), 0o644))
	return root, file
}

func TestCurrentFileLocationConfigured(t *testing.T) {
	_, file := makeProject(t)
	r := NewResolver(file)

	got, err := r.CurrentFileLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, file, got)
}

func TestCurrentFileLocationMissing(t *testing.T) {
	r := NewResolver(filepath.Join(t.TempDir(), "gone.go"))

	_, err := r.CurrentFileLocation(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, domain.CodeEnvFileNotFound, domain.ErrorCodeOf(err))
}

func TestCurrentFileLocationFallsBackToWorkingDir(t *testing.T) {
	r := NewResolver("")
	r.getwd = func() (string, error) { return "/work", nil }

	got, err := r.CurrentFileLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/work", got)
}

func TestCurrentFileLocationWorkingDirError(t *testing.T) {
	r := NewResolver("")
	r.getwd = func() (string, error) { return "", errors.New("cwd removed") }

	_, err := r.CurrentFileLocation(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoCurrentFile)
}

func TestCurrentFileLocationCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewResolver("").CurrentFileLocation(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProjectRootFor(t *testing.T) {
	root, file := makeProject(t)
	r := NewResolver(file)

	got, ok, err := r.ProjectRootFor(context.Background(), file)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, root, got)

	// A directory inside the project resolves the same way.
	got, ok, err = r.ProjectRootFor(context.Background(), filepath.Dir(file))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, root, got)
}

func TestProjectRootForCustomMarkers(t *testing.T) {
	root, file := makeProject(t)
	inner := filepath.Join(root, "pkg")
	require.NoError(t, os.WriteFile(filepath.Join(inner, "BUILD"), nil, 0o644))

	r := NewResolver(file, WithMarkers([]string{"BUILD"}))
	got, ok, err := r.ProjectRootFor(context.Background(), file)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, inner, got)
}

func TestProjectRootForNoProject(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver("", WithMarkers([]string{"definitely-not-a-marker-file"}))

	_, ok, err := r.ProjectRootFor(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = r.ProjectRootFor(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}
