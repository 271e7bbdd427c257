package csvbars

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_HappyPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qqq.csv")
	content := "ts,o,h,l,c,v\n" +
		"2024-01-02T09:30:00Z,100,101,99,100.5,1000\n" +
		"2024-01-02T09:31:00Z,100.5,102,100,101.5,1200\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	bars, rowErrs, err := LoadFile(path, "QQQ")
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, bars, 2)
	assert.Equal(t, "QQQ", bars[0].Symbol)
	assert.Equal(t, 101.5, bars[1].Close)
}

func TestLoadFile_SkipsBadRowsAccumulatesErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qqq.csv")
	content := "ts,o,h,l,c,v\n" +
		"2024-01-02T09:30:00Z,100,101,99,100.5,1000\n" +
		"not-a-timestamp,100,101,99,100.5,1000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	bars, rowErrs, err := LoadFile(path, "QQQ")
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Len(t, rowErrs, 1)
}

func TestLoadFile_MissingRequiredColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("ts,o,h,l,c\n2024-01-02T09:30:00Z,1,2,0.5,1.5\n"), 0o644))

	_, _, err := LoadFile(path, "QQQ")
	assert.Error(t, err)
}
