// Package buildinfo contains build-time metadata separate from user configuration
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// UnknownValue is reported for metadata the build did not inject.
const UnknownValue = "unknown"

// BuildInfo provides an interface for accessing build-time metadata.
type BuildInfo interface {
	Version() string
	BuildDate() string
	SystemID() string
}

// Context contains build-time metadata that is not user-configurable.
// Version and BuildDate are injected with -ldflags at build time.
type Context struct {
	version   string
	buildDate string
	systemID  string
}

// NewContext creates a Context.
func NewContext(version, buildDate, systemID string) *Context {
	return &Context{
		version:   version,
		buildDate: buildDate,
		systemID:  systemID,
	}
}

// Version returns the build version, falling back to the module version
// recorded by the Go toolchain.
func (c *Context) Version() string {
	if c == nil {
		return UnknownValue
	}
	if c.version != "" {
		return c.version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return UnknownValue
}

// BuildDate returns the build date.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// SystemID returns the installation identifier.
func (c *Context) SystemID() string {
	if c == nil || c.systemID == "" {
		return UnknownValue
	}
	return c.systemID
}

// SetSystemID records the installation identifier once it is known.
func (c *Context) SetSystemID(id string) {
	if c != nil {
		c.systemID = id
	}
}

// String formats the metadata for `syncwave version`.
func (c *Context) String() string {
	return fmt.Sprintf("SyncWave %s (built %s, %s, %s/%s)",
		c.Version(), c.BuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

var _ BuildInfo = (*Context)(nil)
