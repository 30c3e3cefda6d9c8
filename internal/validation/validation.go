package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var (
	// UUIDRegex matches standard UUID format
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// publisherNameRegex matches names that are safe to pass as a worker argument
	publisherNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

	// containerNameRegex matches docker container names
	containerNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]+$`)
)

const maxPublisherNameLength = 128

// ValidateUUID checks if the string is a valid UUID
func ValidateUUID(id string) error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if !uuidRegex.MatchString(id) {
		return fmt.Errorf("invalid UUID format: %s", id)
	}
	return nil
}

// ValidateRunID validates the per-invocation run ID
func ValidateRunID(id string) error {
	return ValidateUUID(id)
}

// ValidatePublisherName checks that a publisher name reported by a worker can
// be handed back to a worker on its command line.
func ValidatePublisherName(name string) error {
	if name == "" {
		return fmt.Errorf("publisher name cannot be empty")
	}
	if len(name) > maxPublisherNameLength {
		return fmt.Errorf("publisher name too long (%d > %d)", len(name), maxPublisherNameLength)
	}
	if !publisherNameRegex.MatchString(name) {
		return fmt.Errorf("invalid publisher name: %q", name)
	}
	return nil
}

// ValidateContainerRef accepts either a container ID (hex string) or a
// container name.
func ValidateContainerRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("container reference cannot be empty")
	}
	if ValidateContainerID(ref) == nil {
		return nil
	}
	if !containerNameRegex.MatchString(ref) {
		return fmt.Errorf("invalid container reference: %s", ref)
	}
	return nil
}

// ValidateContainerID validates a container ID (hex string)
func ValidateContainerID(id string) error {
	if id == "" {
		return fmt.Errorf("container ID cannot be empty")
	}

	// Container IDs are hex strings, typically 64 chars but can be shorter for short IDs
	if len(id) < 12 || len(id) > 64 {
		return fmt.Errorf("invalid container ID length: %s", id)
	}

	for _, c := range id {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return fmt.Errorf("invalid container ID format: %s", id)
		}
	}

	return nil
}

// ResolveOutputPath returns the absolute output path for generated
// artifacts. An empty path means the current working directory.
func ResolveOutputPath(path string) (string, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolving working directory: %w", err)
		}
		return wd, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving output path %s: %w", path, err)
	}

	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return "", fmt.Errorf("output path is not a directory: %s", abs)
	}

	return abs, nil
}
