package buildinfo

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{"nil context", nil, UnknownValue},
		{"valid version", NewContext("1.0.0", "2026-01-01", "id"), "1.0.0"},
		{"pre-release tag", NewContext("1.0.0-beta.1", "2026-01-01", "id"), "1.0.0-beta.1"},
		{"build metadata", NewContext("1.0.0+build.123", "", ""), "1.0.0+build.123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.ctx.Version())
		})
	}
}

func TestContextEmptyFieldsAreUnknown(t *testing.T) {
	t.Parallel()

	ctx := NewContext("1.0.0", "", "")
	assert.Equal(t, UnknownValue, ctx.BuildDate())
	assert.Equal(t, UnknownValue, ctx.SystemID())

	var nilCtx *Context
	assert.Equal(t, UnknownValue, nilCtx.BuildDate())
	assert.Equal(t, UnknownValue, nilCtx.SystemID())
	nilCtx.SetSystemID("ignored")
}

func TestContextSetSystemID(t *testing.T) {
	t.Parallel()

	ctx := NewContext("1.0.0", "2026-01-01", "")
	ctx.SetSystemID("3f1c")
	assert.Equal(t, "3f1c", ctx.SystemID())
}

func TestContextString(t *testing.T) {
	t.Parallel()

	s := NewContext("1.2.3", "2026-10-01", "").String()
	assert.True(t, strings.HasPrefix(s, "SyncWave 1.2.3 (built 2026-10-01"), s)
	assert.Contains(t, s, runtime.GOOS+"/"+runtime.GOARCH)
}
