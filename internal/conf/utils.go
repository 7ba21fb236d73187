// conf/utils.go path helpers for the configuration package
package conf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// When one of them already holds a config file only that directory is
// returned, so a first-run default is always written to the first entry.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case osWindows:
		configPaths = []string{
			filepath.Join(homeDir, "AppData", "Roaming", appDirName),
			".",
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", appDirName),
			".",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, ConfigFileName)); err == nil {
			return []string{path}, nil
		}
	}
	return configPaths, nil
}

// ResolvePath expands environment variables in path and makes relative
// paths relative to the directory of the config file in use.
func ResolvePath(path, configFile string) string {
	expanded := filepath.Clean(os.ExpandEnv(path))
	if filepath.IsAbs(expanded) || configFile == "" {
		return expanded
	}
	return filepath.Join(filepath.Dir(configFile), expanded)
}

// moveFile copies src to dst and removes src. Used when a rename crosses
// filesystems.
func moveFile(src, dst string) error {
	srcFile, err := os.Open(src) //nolint:gosec // src is a temp file we created
	if err != nil {
		return fmt.Errorf("error opening source file: %w", err)
	}
	defer func() {
		if err := srcFile.Close(); err != nil {
			GetLogger().Warn("failed to close source file", logger.Error(err))
		}
	}()

	dstFile, err := os.Create(dst) //nolint:gosec // dst is the config file path
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("error copying file contents: %w", err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("error closing destination file: %w", err)
	}

	return os.Remove(src)
}
