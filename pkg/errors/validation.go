package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// groupNameRegex matches names safe to use as a directory and filename part.
var groupNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateGroupName validates a palette group name. Group names end up in
// page filenames and default directories, so they must be plain words.
//
// The validation rules:
//   - No empty names
//   - Maximum length of 128 characters
//   - Letters, digits, '.', '_' and '-' only, not starting with punctuation
//   - No ".." sequences
func ValidateGroupName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "group name cannot be empty")
	}
	if len(name) > 128 {
		return New(ErrCodeInvalidInput, "group name too long (max 128 characters)")
	}
	if strings.Contains(name, "..") {
		return New(ErrCodeInvalidInput, "group name cannot contain %q", "..")
	}
	if !groupNameRegex.MatchString(name) {
		return New(ErrCodeInvalidInput, "invalid group name: %q", name)
	}
	return nil
}

// ValidateGroupDir validates a group directory hint. It must stay inside
// the map directory.
func ValidateGroupDir(dir string) error {
	if dir == "" {
		return nil
	}
	return ValidatePath(dir)
}

// ValidatePath validates a path relative to an output directory.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidatePageSize checks that a page dimension pair is positive and within
// what image encoders accept.
func ValidatePageSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return New(ErrCodeInvalidInput, "page size must be positive, got %dx%d", w, h)
	}
	if w > 16384 || h > 16384 {
		return New(ErrCodeInvalidInput, "page size too large (max 16384), got %dx%d", w, h)
	}
	return nil
}

// ValidatePattern validates a page filename pattern. The pattern must tell
// pages of one group apart, so it needs %i and %p, and may not escape the
// group directory.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return New(ErrCodeInvalidFormat, "filename pattern cannot be empty")
	}
	for _, verb := range []string{"%i", "%p"} {
		if !strings.Contains(pattern, verb) {
			return New(ErrCodeInvalidFormat, "filename pattern %q must contain %s", pattern, verb)
		}
	}
	if strings.ContainsAny(pattern, "/\\") || strings.Contains(pattern, "..") {
		return New(ErrCodeInvalidFormat, "filename pattern %q cannot contain path separators", pattern)
	}
	return nil
}
