package organizer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

var fixedNow = time.Date(2025, 10, 1, 14, 30, 5, 0, time.UTC)

func newOrganizer(t *testing.T, partition bool) (*Organizer, string) {
	t.Helper()
	root := t.TempDir()
	opts := DefaultOptions(root)
	opts.DatePartition = partition
	opts.Now = func() time.Time { return fixedNow }
	o := New(opts)
	require.NoError(t, o.EnsureDirs())
	return o, root
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEnsureDirs(t *testing.T) {
	o, root := newOrganizer(t, false)

	for _, name := range []string{DefaultProcessedDir, DefaultDuplicatesDir, DefaultErrorsDir} {
		info, err := os.Stat(filepath.Join(root, name))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(root, DefaultErrorsDir), o.Dir(Errors))
}

func TestMoveToDestination(t *testing.T) {
	tests := []struct {
		dest   Destination
		folder string
	}{
		{Processed, DefaultProcessedDir},
		{Duplicates, DefaultDuplicatesDir},
		{Errors, DefaultErrorsDir},
	}

	for _, tt := range tests {
		t.Run(tt.dest.String(), func(t *testing.T) {
			o, root := newOrganizer(t, false)
			src := writeSource(t, root, "a.pdf", "content")

			got, err := o.Move(src, tt.dest, time.Time{})
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(root, tt.folder, "a.pdf"), got)

			data, err := os.ReadFile(got)
			require.NoError(t, err)
			assert.Equal(t, "content", string(data))
			assert.NoFileExists(t, src)
		})
	}
}

func TestMoveDatePartition(t *testing.T) {
	o, root := newOrganizer(t, true)

	src := writeSource(t, root, "a.pdf", "x")
	got, err := o.Move(src, Processed, time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, DefaultProcessedDir, "2025-09-07", "a.pdf"), got)

	src = writeSource(t, root, "b.pdf", "x")
	got, err = o.Move(src, Errors, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, DefaultErrorsDir, "2025-10-01", "b.pdf"), got)
}

func TestMoveCollisionSuffix(t *testing.T) {
	o, root := newOrganizer(t, false)
	dest := filepath.Join(root, DefaultProcessedDir)
	writeSource(t, dest, "a.pdf", "existing")

	got, err := o.Move(writeSource(t, root, "a.pdf", "second"), Processed, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "a-143005.pdf"), got)

	got, err = o.Move(writeSource(t, root, "a.pdf", "third"), Processed, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "a-143005-1.pdf"), got)

	data, err := os.ReadFile(filepath.Join(dest, "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestConcurrentMovesNeverOverwrite(t *testing.T) {
	o, root := newOrganizer(t, false)

	const n = 24
	sources := make([]string, n)
	for i := range sources {
		sources[i] = writeSource(t, filepath.Join(root, "in", fmt.Sprint(i)), "same.pdf", fmt.Sprint(i))
	}

	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := range sources {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Move(sources[i], Processed, time.Time{})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := range results {
		require.NoError(t, errs[i])
		assert.False(t, seen[results[i]], "duplicate destination %s", results[i])
		seen[results[i]] = true

		data, err := os.ReadFile(results[i])
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), string(data))
	}

	entries, err := os.ReadDir(filepath.Join(root, DefaultProcessedDir))
	require.NoError(t, err)
	assert.Len(t, entries, n)
}

func TestMoveMissingSource(t *testing.T) {
	o, root := newOrganizer(t, false)

	_, err := o.Move(filepath.Join(root, "gone.pdf"), Errors, time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFilesystem))

	entries, err := os.ReadDir(filepath.Join(root, DefaultErrorsDir))
	require.NoError(t, err)
	assert.Empty(t, entries, "reservation must be released")
}

func TestMoveUnknownDestination(t *testing.T) {
	o, root := newOrganizer(t, false)
	src := writeSource(t, root, "a.pdf", "x")

	_, err := o.Move(src, Destination(9), time.Time{})
	assert.True(t, errors.Is(err, errors.ErrFilesystem))
	assert.FileExists(t, src)
}
