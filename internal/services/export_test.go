package services

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestDirSaver_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	saver := NewDirSaver(dir)

	location, err := saver.Save("solar_sites.json", strings.NewReader(`[{"site_id":1}]`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "solar_sites.json"), location)

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"site_id":1}]`, string(data))

	// Saving again replaces the previous download.
	_, err = saver.Save("solar_sites.json", strings.NewReader(`[]`))
	require.NoError(t, err)
	data, err = os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestDirSaver_RejectsPaths(t *testing.T) {
	saver := NewDirSaver(t.TempDir())

	for _, name := range []string{"", "../solar_sites.csv", "nested/solar_sites.csv"} {
		_, err := saver.Save(name, strings.NewReader("x"))
		assert.Error(t, err, name)
	}
}

func TestDirSaver_FailedWriteLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	saver := NewDirSaver(dir)

	_, err := saver.Save("solar_sites.csv", failingReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
