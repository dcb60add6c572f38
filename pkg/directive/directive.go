// Package directive parses .txa directive files, the user's instructions to
// the palettizer.
//
// A directive file is a list of lines. Blank lines and everything after a
// '#' are ignored. Lines starting with ':' set session parameters or
// describe palette groups:
//
//	:palette 512 512
//	:margin 2
//	:imagetype png
//	:group town with world
//	:group town dir shared/town margin 4
//	:remap poly char group
//	:fuzz 0.01
//	:repeat correct
//	:omitsolitary
//	:bake
//
// Every other line is a rule: one or more filename patterns, a colon, and
// the requests that apply to whatever the patterns match:
//
//	wood*.png brick.png : 64 64 margin 1
//	sky*               : 50% omit
//	tile_*             : repeat
//	house*.scene.json  : town
//
// The first rule whose pattern matches wins. Lines that cannot be parsed are
// recorded in File.Invalid and otherwise skipped.
package directive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/matzehuels/texpal/pkg/imageio"
	"github.com/matzehuels/texpal/pkg/scene"
	"github.com/matzehuels/texpal/pkg/uv"
)

// ErrSyntax is wrapped by the error recorded for every invalid line.
var ErrSyntax = errors.New("syntax error")

// File is a parsed directive file. Pointer fields are nil when the file
// does not set them.
type File struct {
	PageW, PageH int
	Margin       *int
	ImageType    string
	Remap        *uv.Policy
	RemapChar    *uv.Policy
	Fuzz         *float64
	Repeat       *uv.RepeatPolicy
	OmitSolitary *bool
	Bake         bool

	Groups  []GroupDecl
	Rules   []*Rule
	Invalid []Invalid
}

// GroupDecl is one :group line.
type GroupDecl struct {
	Line      int
	Name      string
	With      []string
	Dir       string
	Margin    int
	HasMargin bool
}

// Rule is a pattern line.
type Rule struct {
	Line     int
	Patterns []string

	W, H      int
	Scale     float64
	Margin    int
	HasMargin bool
	Omit      bool
	Wrap      uv.Wrap
	Groups    []string
}

// Invalid is a line that could not be parsed.
type Invalid struct {
	Line int    `json:"line" yaml:"line"`
	Text string `json:"text" yaml:"text"`
	Err  string `json:"error" yaml:"error"`
}

// ReadFile parses the directive file at path.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a directive file. Only read errors are returned; malformed
// lines end up in File.Invalid.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		raw := sc.Text()
		line := raw
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var err error
		if strings.HasPrefix(line, ":") {
			err = f.keyword(n, strings.Fields(line[1:]))
		} else {
			err = f.rule(n, line)
		}
		if err != nil {
			f.Invalid = append(f.Invalid, Invalid{Line: n, Text: strings.TrimSpace(raw), Err: err.Error()})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func syntaxf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

func (f *File) keyword(line int, tok []string) error {
	if len(tok) == 0 {
		return syntaxf("empty keyword")
	}
	args := tok[1:]
	switch strings.ToLower(tok[0]) {
	case "palette":
		if len(args) != 2 {
			return syntaxf(":palette needs width and height")
		}
		w, err1 := positive(args[0])
		h, err2 := positive(args[1])
		if err := errors.Join(err1, err2); err != nil {
			return err
		}
		f.PageW, f.PageH = w, h
	case "margin":
		if len(args) != 1 {
			return syntaxf(":margin needs one value")
		}
		m, err := nonNegative(args[0])
		if err != nil {
			return err
		}
		f.Margin = &m
	case "imagetype":
		if len(args) != 1 {
			return syntaxf(":imagetype needs one value")
		}
		ext := strings.ToLower(strings.TrimPrefix(args[0], "."))
		if !imageio.Supported(ext) {
			return syntaxf("unsupported image type %q", ext)
		}
		f.ImageType = ext
	case "group":
		return f.group(line, args)
	case "remap":
		return f.remap(args)
	case "fuzz":
		if len(args) != 1 {
			return syntaxf(":fuzz needs one value")
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil || v < 0 {
			return syntaxf("invalid fuzz %q", args[0])
		}
		f.Fuzz = &v
	case "repeat":
		if len(args) != 1 {
			return syntaxf(":repeat needs correct or trust")
		}
		p, err := uv.ParseRepeatPolicy(args[0])
		if err != nil {
			return syntaxf("%v", err)
		}
		f.Repeat = &p
	case "omitsolitary", "noomitsolitary":
		if len(args) != 0 {
			return syntaxf(":%s takes no arguments", tok[0])
		}
		v := strings.EqualFold(tok[0], "omitsolitary")
		f.OmitSolitary = &v
	case "bake":
		if len(args) != 0 {
			return syntaxf(":bake takes no arguments")
		}
		f.Bake = true
	default:
		return syntaxf("unknown keyword :%s", tok[0])
	}
	return nil
}

func (f *File) group(line int, args []string) error {
	if len(args) < 2 {
		return syntaxf(":group needs a name and at least one clause")
	}
	d := GroupDecl{Line: line, Name: args[0]}
	for i := 1; i < len(args); {
		switch strings.ToLower(args[i]) {
		case "with":
			i++
			start := i
			for i < len(args) && !groupClause(args[i]) {
				d.With = append(d.With, args[i])
				i++
			}
			if i == start {
				return syntaxf(":group %s with: no group names", d.Name)
			}
		case "dir":
			if i+1 >= len(args) {
				return syntaxf(":group %s dir: missing directory", d.Name)
			}
			d.Dir = args[i+1]
			i += 2
		case "margin":
			if i+1 >= len(args) {
				return syntaxf(":group %s margin: missing value", d.Name)
			}
			m, err := nonNegative(args[i+1])
			if err != nil {
				return err
			}
			d.Margin, d.HasMargin = m, true
			i += 2
		default:
			return syntaxf(":group %s: unexpected %q", d.Name, args[i])
		}
	}
	f.Groups = append(f.Groups, d)
	return nil
}

func groupClause(s string) bool {
	switch strings.ToLower(s) {
	case "with", "dir", "margin":
		return true
	}
	return false
}

func (f *File) remap(args []string) error {
	if len(args) != 1 && len(args) != 3 {
		return syntaxf(":remap needs a policy, optionally followed by char and a policy")
	}
	p, err := uv.ParsePolicy(args[0])
	if err != nil {
		return syntaxf("%v", err)
	}
	f.Remap = &p
	if len(args) == 3 {
		if !strings.EqualFold(args[1], "char") {
			return syntaxf(":remap: expected char, got %q", args[1])
		}
		c, err := uv.ParsePolicy(args[2])
		if err != nil {
			return syntaxf("%v", err)
		}
		f.RemapChar = &c
	}
	return nil
}

func (f *File) rule(line int, text string) error {
	i := strings.IndexByte(text, ':')
	if i < 0 {
		return syntaxf("rule without ':'")
	}
	r := &Rule{Line: line, Patterns: strings.Fields(text[:i])}
	if len(r.Patterns) == 0 {
		return syntaxf("rule without patterns")
	}
	for _, p := range r.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return syntaxf("bad pattern %q", p)
		}
	}

	tok := strings.Fields(text[i+1:])
	for j := 0; j < len(tok); j++ {
		t := tok[j]
		switch {
		case strings.EqualFold(t, "omit"):
			r.Omit = true
		case strings.EqualFold(t, "repeat"):
			r.Wrap = uv.WrapRepeat
		case strings.EqualFold(t, "clamp"):
			r.Wrap = uv.WrapClamp
		case strings.EqualFold(t, "margin"):
			if j+1 >= len(tok) {
				return syntaxf("margin: missing value")
			}
			m, err := nonNegative(tok[j+1])
			if err != nil {
				return err
			}
			r.Margin, r.HasMargin = m, true
			j++
		case strings.HasSuffix(t, "%"):
			v, err := strconv.ParseFloat(strings.TrimSuffix(t, "%"), 64)
			if err != nil || v <= 0 {
				return syntaxf("invalid scale %q", t)
			}
			r.Scale = v
		case isDigit(t[0]):
			if j+1 >= len(tok) {
				return syntaxf("size %s needs a height", t)
			}
			w, err1 := positive(t)
			h, err2 := positive(tok[j+1])
			if err := errors.Join(err1, err2); err != nil {
				return err
			}
			r.W, r.H = w, h
			j++
		default:
			r.Groups = append(r.Groups, t)
		}
	}
	f.Rules = append(f.Rules, r)
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func positive(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, syntaxf("expected a positive integer, got %q", s)
	}
	return v, nil
}

func nonNegative(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, syntaxf("expected a non-negative integer, got %q", s)
	}
	return v, nil
}

// MatchTexture returns the first rule matching a texture, by its name or
// the base name of its source file. Patterns naming scene files are
// skipped.
func (f *File) MatchTexture(name, source string) (*Rule, bool) {
	base := filepath.Base(source)
	for _, r := range f.Rules {
		for _, p := range r.Patterns {
			if isScenePattern(p) {
				continue
			}
			if match(p, name) || (source != "" && match(p, base)) {
				return r, true
			}
		}
	}
	return nil, false
}

// MatchScene returns the first rule with a scene-file pattern matching the
// base name of path.
func (f *File) MatchScene(path string) (*Rule, bool) {
	base := filepath.Base(path)
	for _, r := range f.Rules {
		for _, p := range r.Patterns {
			if isScenePattern(p) && match(p, base) {
				return r, true
			}
		}
	}
	return nil, false
}

func isScenePattern(p string) bool { return strings.HasSuffix(strings.ToLower(p), scene.Ext) }

func match(pattern, name string) bool {
	ok, _ := filepath.Match(pattern, name)
	return ok
}
