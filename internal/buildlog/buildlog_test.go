package buildlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenTruncates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "build", "logs")

	l, err := Open(dir, true)
	require.NoError(t, err)
	_, err = l.WriteString("first run\n")
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	l, err = Open(dir, false)
	require.NoError(t, err)
	assert.False(t, l.Verbose())
	assert.Equal(t, filepath.Join(dir, FileName), l.Path())
	_, err = l.WriteString("second run\n")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Equal(t, "second run\n", string(data))

	_, err = l.WriteString("late")
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestConcurrentWritesKeepLinesIntact(t *testing.T) {
	l, err := Open(t.TempDir(), false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, _ = l.WriteString(fmt.Sprintf("writer-%d line-%03d %s\n", w, i, strings.Repeat("x", 64)))
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 400)
	for _, line := range lines {
		assert.Regexp(t, `^writer-[01] line-\d{3} x{64}$`, line)
	}
}
