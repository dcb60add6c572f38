package palette

import "fmt"

// OmitReason explains why a texture is not on an atlas page. OmitNone means
// the placement is (or is about to be) packed.
type OmitReason int

const (
	// OmitNone marks a placed texture.
	OmitNone OmitReason = iota
	// OmitSize marks a texture too large for an empty page.
	OmitSize
	// OmitOmitted marks a texture the directive file excluded.
	OmitOmitted
	// OmitUnused marks a texture no scene file uses.
	OmitUnused
	// OmitUnknown marks a texture whose source size could not be read.
	OmitUnknown
	// OmitSolitary marks a texture that would be alone on its page.
	OmitSolitary
	// OmitRepeats marks a texture whose UVs tile beyond the unit square.
	OmitRepeats
)

// OmitReasons lists every reason in declaration order.
var OmitReasons = []OmitReason{
	OmitNone, OmitSize, OmitOmitted, OmitUnused, OmitUnknown, OmitSolitary, OmitRepeats,
}

// String returns the lower-case name used in reports and session files.
func (r OmitReason) String() string {
	switch r {
	case OmitNone:
		return "none"
	case OmitSize:
		return "size"
	case OmitOmitted:
		return "omitted"
	case OmitUnused:
		return "unused"
	case OmitUnknown:
		return "unknown"
	case OmitSolitary:
		return "solitary"
	case OmitRepeats:
		return "repeats"
	}
	return fmt.Sprintf("OmitReason(%d)", int(r))
}

// ParseOmitReason is the inverse of String.
func ParseOmitReason(s string) (OmitReason, error) {
	for _, r := range OmitReasons {
		if r.String() == s {
			return r, nil
		}
	}
	return OmitNone, fmt.Errorf("unknown omit reason %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r OmitReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *OmitReason) UnmarshalText(b []byte) error {
	v, err := ParseOmitReason(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Standalone reports whether a texture omitted for this reason is still
// delivered as a separate image file next to the pages.
func (r OmitReason) Standalone() bool {
	switch r {
	case OmitSize, OmitOmitted, OmitRepeats, OmitSolitary:
		return true
	case OmitNone, OmitUnused, OmitUnknown:
		return false
	}
	return false
}
