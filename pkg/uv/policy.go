package uv

import "fmt"

// Policy selects how observed UVs are re-centered before packing.
type Policy int

const (
	// PolicyNever leaves UVs where the scene put them.
	PolicyNever Policy = iota
	// PolicyGroup translates every primitive of a scene group by one shared
	// whole-unit offset.
	PolicyGroup
	// PolicyPoly translates each primitive independently.
	PolicyPoly
)

// String returns the directive keyword for the policy.
func (p Policy) String() string {
	switch p {
	case PolicyNever:
		return "never"
	case PolicyGroup:
		return "group"
	case PolicyPoly:
		return "poly"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses "never", "group" or "poly".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "never":
		return PolicyNever, nil
	case "group":
		return PolicyGroup, nil
	case "poly":
		return PolicyPoly, nil
	}
	return PolicyNever, fmt.Errorf("invalid remap policy %q (must be never, group or poly)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Wrap is a texture's addressing mode on one axis.
type Wrap int

const (
	WrapUnspecified Wrap = iota
	WrapClamp
	WrapRepeat
)

// String returns the scene-file spelling of the wrap mode.
func (w Wrap) String() string {
	switch w {
	case WrapUnspecified:
		return ""
	case WrapClamp:
		return "clamp"
	case WrapRepeat:
		return "repeat"
	}
	return fmt.Sprintf("Wrap(%d)", int(w))
}

// ParseWrap parses "", "clamp" or "repeat".
func ParseWrap(s string) (Wrap, error) {
	switch s {
	case "", "unspecified":
		return WrapUnspecified, nil
	case "clamp":
		return WrapClamp, nil
	case "repeat":
		return WrapRepeat, nil
	}
	return WrapUnspecified, fmt.Errorf("invalid wrap mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (w Wrap) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *Wrap) UnmarshalText(b []byte) error {
	v, err := ParseWrap(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// RepeatPolicy decides what happens when a texture marked as clamped is
// observed to repeat.
type RepeatPolicy int

const (
	// RepeatCorrect treats a truly repeating texture as repeating whatever
	// the scene file claims.
	RepeatCorrect RepeatPolicy = iota
	// RepeatTrust keeps the scene file's clamp flag and packs anyway.
	RepeatTrust
)

// String returns the directive keyword for the policy.
func (p RepeatPolicy) String() string {
	if p == RepeatTrust {
		return "trust"
	}
	return "correct"
}

// ParseRepeatPolicy parses "correct" or "trust".
func ParseRepeatPolicy(s string) (RepeatPolicy, error) {
	switch s {
	case "correct":
		return RepeatCorrect, nil
	case "trust":
		return RepeatTrust, nil
	}
	return RepeatCorrect, fmt.Errorf("invalid repeat policy %q (must be correct or trust)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p RepeatPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *RepeatPolicy) UnmarshalText(b []byte) error {
	v, err := ParseRepeatPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// IsRepeating reports whether r leaves the unit square by more than fuzz on
// either axis.
func IsRepeating(r Range, fuzz float64) bool {
	if !r.Any {
		return false
	}
	return !r.Within(Unit, fuzz)
}

// ResolveWrap reconciles the wrap mode a scene declares with the range it
// actually uses. A repeat flag on a range that fits is downgraded to clamp.
// A clamp (or missing) flag on a range that repeats becomes repeat under
// RepeatCorrect and stays clamp under RepeatTrust.
func ResolveWrap(marked Wrap, r Range, fuzz float64, policy RepeatPolicy) Wrap {
	truly := IsRepeating(r, fuzz)
	switch marked {
	case WrapRepeat:
		if !truly {
			return WrapClamp
		}
		return WrapRepeat
	case WrapClamp, WrapUnspecified:
		if truly && policy == RepeatCorrect {
			return WrapRepeat
		}
		return WrapClamp
	}
	return WrapClamp
}
