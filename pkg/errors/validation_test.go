package errors

import (
	"strings"
	"testing"
)

func TestValidateGroupName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "town", false},
		{"with digits", "level2", false},
		{"with punctuation", "town_center-v1.2", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 129), true},
		{"path separator", "town/hall", true},
		{"traversal", "a..b", true},
		{"leading dot", ".hidden", true},
		{"space", "town hall", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGroupName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGroupName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "maps/town", false},
		{"valid nested", "maps/town/props", false},
		{"valid filename only", "town", false},

		{"empty", "", true},
		{"too long", string(make([]byte, 600)), true},
		{"absolute path", "/etc/passwd", true},
		{"path traversal", "../../../etc/passwd", true},
		{"path traversal middle", "foo/../bar", true},
		{"null byte", "foo\x00bar", true},
		{"backslash", "foo\\bar", true},
		{"control char", "foo\x01bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidPath) {
				t.Errorf("ValidatePath(%q) returned wrong error code: %v", tt.input, err)
			}
		})
	}
}

func TestValidateGroupDir(t *testing.T) {
	if err := ValidateGroupDir(""); err != nil {
		t.Errorf("empty dir should be allowed: %v", err)
	}
	if err := ValidateGroupDir("../out"); err == nil {
		t.Error("escaping dir should fail")
	}
}

func TestValidatePageSize(t *testing.T) {
	tests := []struct {
		w, h    int
		wantErr bool
	}{
		{512, 512, false},
		{1024, 256, false},
		{300, 200, false},
		{0, 512, true},
		{512, -1, true},
		{32768, 512, true},
	}
	for _, tt := range tests {
		err := ValidatePageSize(tt.w, tt.h)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePageSize(%d, %d) error = %v, wantErr %v", tt.w, tt.h, err, tt.wantErr)
		}
	}
}

func TestValidatePattern(t *testing.T) {
	tests := []struct {
		pattern string
		wantErr bool
	}{
		{"%g_palette_%p_%i", false},
		{"pal_%p%i", false},
		{"", true},
		{"%g_palette", true},
		{"%g_%i", true},
		{"sub/%g_%p_%i", true},
	}
	for _, tt := range tests {
		err := ValidatePattern(tt.pattern)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePattern(%q) error = %v, wantErr %v", tt.pattern, err, tt.wantErr)
		}
	}
}

func TestErrorCodesAreUnique(t *testing.T) {
	codes := []Code{
		ErrCodeInvalidInput,
		ErrCodeInvalidPath,
		ErrCodeInvalidFormat,
		ErrCodeInvalidConfig,
		ErrCodeNotFound,
		ErrCodeLocked,
		ErrCodeIO,
		ErrCodeInvariant,
		ErrCodeCancelled,
		ErrCodeInternal,
		ErrCodeUnsupported,
	}

	seen := make(map[Code]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %s", code)
		}
		seen[code] = true
	}
}
