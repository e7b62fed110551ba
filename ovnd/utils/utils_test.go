package utils

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPidFileRoundTrip(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	require.NoError(t, WritePidFile("ovnd-test", 12345))
	pid, err := ReadPidFile("ovnd-test")
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)

	require.NoError(t, RemovePidFile("ovnd-test"))
	_, err = ReadPidFile("ovnd-test")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGeneratePidFile_RequiresName(t *testing.T) {
	_, err := GeneratePidFile("")
	assert.Error(t, err)
}

func TestReadPidFile_TrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	require.NoError(t, os.WriteFile(dir+"/ovnd-test.pid", []byte("4242\n"), 0o644))

	pid, err := ReadPidFile("ovnd-test")
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}
