package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(err)
	require.Empty(h.Lines())
}

func TestAddSkipsEmptyAndImmediateRepeat(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	h := &History{}
	h.Add("ls")
	h.Add("")
	h.Add("ls")
	h.Add("pwd")
	h.Add("pwd")

	require.Equal([]string{"ls", "pwd"}, h.Lines())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "history.txt")
	h := &History{path: path}
	h.Add("echo hi")
	h.Add("cd /tmp")
	require.NoError(h.Save())

	data, err := os.ReadFile(path)
	require.NoError(err)
	require.Equal("echo hi\ncd /tmp\n", string(data))

	loaded, err := Load(path)
	require.NoError(err)
	require.Equal([]string{"echo hi", "cd /tmp"}, loaded.Lines())
}
