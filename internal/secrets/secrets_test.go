package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwave/syncwave/internal/errors"
)

func TestExpandString(t *testing.T) {
	t.Setenv("SYNCWAVE_TEST_TOKEN", "secret123")
	t.Setenv("SYNCWAVE_TEST_EMPTY", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"literal", "literal-value", "literal-value", false},
		{"variable", "${SYNCWAVE_TEST_TOKEN}", "secret123", false},
		{"embedded", "ntfy://${SYNCWAVE_TEST_TOKEN}@ntfy.sh/topic", "ntfy://secret123@ntfy.sh/topic", false},
		{"fallback unused", "${SYNCWAVE_TEST_TOKEN:-other}", "secret123", false},
		{"fallback used", "${SYNCWAVE_TEST_UNSET:-other}", "other", false},
		{"empty fallback", "x${SYNCWAVE_TEST_UNSET:-}", "x", false},
		{"empty counts as unset", "${SYNCWAVE_TEST_EMPTY}", "", true},
		{"missing", "${SYNCWAVE_TEST_UNSET}", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeSecret(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	return path
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	got, err := ReadFile(writeSecret(t, " pass word \n", 0o600))
	require.NoError(t, err)
	assert.Equal(t, " pass word ", got)

	_, err = ReadFile(writeSecret(t, "\n", 0o600))
	require.Error(t, err)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = ReadFile(t.TempDir())
	require.Error(t, err)

	_, err = ReadFile("")
	require.Error(t, err)
}

func TestReadFileRejectsLargeFiles(t *testing.T) {
	t.Parallel()

	big := make([]byte, maxFileSize+1)
	for i := range big {
		big[i] = 'a'
	}
	_, err := ReadFile(writeSecret(t, string(big), 0o600))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLimit))
}

func TestResolvePrefersFile(t *testing.T) {
	t.Setenv("SYNCWAVE_TEST_PASSWORD", "from-env")

	got, err := Resolve(writeSecret(t, "from-file\n", 0o400), "${SYNCWAVE_TEST_PASSWORD}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = Resolve("", "${SYNCWAVE_TEST_PASSWORD}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpandAll(t *testing.T) {
	t.Setenv("SYNCWAVE_TEST_TOPIC", "alerts")

	got, err := ExpandAll([]string{"logger://", "ntfy://ntfy.sh/${SYNCWAVE_TEST_TOPIC}"})
	require.NoError(t, err)
	assert.Equal(t, []string{"logger://", "ntfy://ntfy.sh/alerts"}, got)

	_, err = ExpandAll([]string{"ntfy://ntfy.sh/${SYNCWAVE_TEST_UNSET}"})
	require.Error(t, err)
}
