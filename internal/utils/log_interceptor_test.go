package utils

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogInterceptor_PrefixesCompleteLines(t *testing.T) {
	var out bytes.Buffer
	li := NewLogInterceptor(&out)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	li.now = func() time.Time { return fixed }

	n, err := li.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	_, err = li.Write([]byte("ond\n"))
	require.NoError(t, err)
	_, err = li.Write([]byte("tail"))
	require.NoError(t, err)
	require.NoError(t, li.Close())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "line=1 time=2024-01-02T03:04:05Z first", lines[0])
	assert.Equal(t, "line=2 time=2024-01-02T03:04:05Z second", lines[1])
	assert.Equal(t, "line=3 time=2024-01-02T03:04:05Z tail", lines[2])
}
