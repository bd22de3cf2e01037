package utils

import (
	"fmt"
	"path"
	"strings"
)

// Size limits (in bytes)
const (
	MaxBridgeMessageSize = 1 * 1024 * 1024 // 1MB - single bridge envelope
	MaxMetadataSize      = 512 * 1024      // 512KB - manifest/metadata payload
)

// SizeValidator validates payload size limits
type SizeValidator struct {
	maxSize int
}

// NewSizeValidator creates a new validator with the specified max size
func NewSizeValidator(maxSize int) *SizeValidator {
	return &SizeValidator{maxSize: maxSize}
}

// ValidateSize checks if the data size is within limits
func (v *SizeValidator) ValidateSize(data []byte) error {
	size := len(data)
	if size > v.maxSize {
		return fmt.Errorf("payload size %d bytes exceeds maximum %d bytes", size, v.maxSize)
	}
	return nil
}

// CleanRelativePath validates a bundle-relative file path and returns it in
// slash form. Absolute paths, parent traversal and empty segments are rejected.
func CleanRelativePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.Contains(p, "\x00") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("path %q contains invalid characters", p)
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q must be relative", p)
	}

	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", fmt.Errorf("path %q escapes the bundle root", p)
		}
	}

	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", fmt.Errorf("path %q has no file component", p)
	}
	return cleaned, nil
}
