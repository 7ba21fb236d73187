// Package secrets resolves credentials that the config file refers to
// instead of embedding: ${VAR} references and mounted secret files such as
// /run/secrets/mqtt_password.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
)

const (
	// maxFileSize caps secret file reads. Secrets are tokens, not documents.
	maxFileSize = 64 * 1024

	component = "secrets"
)

// GetLogger returns the secrets module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(component)
}

// ExpandString expands ${VAR} and ${VAR:-default} references in s. A
// reference without a fallback to an unset variable is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing environment variable(s): %s", strings.Join(missing, ", ")).
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file, dropping trailing newlines. Files readable
// by group or others are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", errors.Newf("secret file path is empty").
			Component(component).
			Category(errors.CategoryValidation).
			Build()
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		category := errors.CategoryFileIO
		if os.IsNotExist(err) {
			category = errors.CategoryNotFound
		}
		return "", errors.New(err).
			Component(component).
			Category(category).
			Context("path", clean).
			Build()
	}
	if !info.Mode().IsRegular() {
		return "", errors.Newf("secret path is not a regular file: %s", clean).
			Component(component).
			Category(errors.CategoryValidation).
			Build()
	}
	if info.Size() > maxFileSize {
		return "", errors.Newf("secret file larger than %d bytes: %s", maxFileSize, clean).
			Component(component).
			Category(errors.CategoryLimit).
			Build()
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		GetLogger().Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", errors.New(err).
			Component(component).
			Category(errors.CategoryFileIO).
			Context("path", clean).
			Build()
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", errors.Newf("secret file is empty: %s", clean).
			Component(component).
			Category(errors.CategoryValidation).
			Build()
	}
	return secret, nil
}

// Resolve returns the secret from filePath when it is set, otherwise value
// with environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

// ExpandAll expands every entry of values.
func ExpandAll(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for i, v := range values {
		expanded, err := ExpandString(v)
		if err != nil {
			return nil, errors.New(err).
				Component(component).
				Category(errors.CategoryConfiguration).
				Context("index", i).
				Build()
		}
		out = append(out, expanded)
	}
	return out, nil
}
