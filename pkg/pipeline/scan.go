package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/matzehuels/texpal/pkg/directive"
	"github.com/matzehuels/texpal/pkg/errors"
	"github.com/matzehuels/texpal/pkg/palette"
	"github.com/matzehuels/texpal/pkg/scene"
	"github.com/matzehuels/texpal/pkg/uv"
)

// scan parses the directive file, applies parameters and group
// declarations, reads every scene file and refreshes what the session knows
// about the textures they use.
func (b *build) scan(ctx context.Context) error {
	if err := b.readDirective(); err != nil {
		return err
	}
	b.sess.SetParams(b.opts.params(directiveParams{b.dir}))
	if b.opts.All {
		b.sess.ForceRegenerate()
	}
	if err := b.applyGroups(); err != nil {
		return err
	}

	for _, path := range b.opts.Remove {
		path = filepath.Clean(path)
		rec := b.sess.Scene(path)
		if rec == nil {
			b.warnf("%s is not part of the session", path)
			continue
		}
		b.sess.RemoveScene(path)
		b.obsolete = append(b.obsolete, rec.Output)
		b.logger.Info("removed scene", "path", path)
	}

	seen := make(map[string]bool, len(b.opts.Scenes))
	var paths []string
	for _, path := range b.opts.Scenes {
		path = filepath.Clean(path)
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}
	for _, rec := range b.sess.Scenes() {
		if seen[rec.Path] {
			continue
		}
		if _, err := os.Stat(rec.Path); os.IsNotExist(err) {
			b.warnf("%s no longer exists, dropping it from the session", rec.Path)
			b.sess.RemoveScene(rec.Path)
			b.obsolete = append(b.obsolete, rec.Output)
			continue
		}
		seen[rec.Path] = true
		paths = append(paths, rec.Path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCancelled, err, "scan")
		}
		if err := b.scanScene(path); err != nil {
			return err
		}
	}
	b.scanTextures(ctx)
	b.logger.Info("scanned scenes", "scenes", len(paths), "textures", len(b.sources))
	return nil
}

func (b *build) readDirective() error {
	if b.opts.Directive == "" {
		b.dir = &directive.File{}
		return nil
	}
	f, err := directive.ReadFile(b.opts.Directive)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.ErrCodeNotFound, err, "directive file %s", b.opts.Directive)
		}
		return errors.Wrap(errors.ErrCodeIO, err, "read directive file %s", b.opts.Directive)
	}
	for _, inv := range f.Invalid {
		b.logger.Warn("invalid directive line", "file", b.opts.Directive, "line", inv.Line, "err", inv.Err)
	}
	b.result.Invalid = f.Invalid
	b.dir = f
	return nil
}

// applyGroups replaces the group graph with the directive's declarations.
// Groups the directive no longer mentions keep their pages but lose their
// parents and overrides.
func (b *build) applyGroups() error {
	for _, decl := range b.dir.Groups {
		if err := errors.ValidateGroupName(decl.Name); err != nil {
			return err
		}
		if err := errors.ValidateGroupDir(decl.Dir); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPath, err, "group %s", decl.Name)
		}
	}
	b.sess.ClearParents()
	for _, g := range b.sess.Groups() {
		g.Dir = ""
		g.Margin, g.HasMargin = 0, false
	}
	for _, decl := range b.dir.Groups {
		g := b.sess.Group(decl.Name)
		g.Dir = decl.Dir
		g.Margin, g.HasMargin = decl.Margin, decl.HasMargin
		for _, name := range decl.With {
			b.sess.AddParent(g, b.sess.Group(name))
		}
	}
	return nil
}

// scanScene parses one scene file and records its references. The output
// is flagged for rebuild when it is new, missing or older than its source.
func (b *build) scanScene(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.ErrCodeNotFound, err, "scene file %s", path)
		}
		return errors.Wrap(errors.ErrCodeIO, err, "scene file %s", path)
	}
	f, err := scene.Read(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "scene file %s", path)
	}
	out := filepath.Join(b.opts.OutDir, filepath.Base(path))
	if sameFile(out, path) {
		return errors.New(errors.ErrCodeInvalidInput, "scene file %s would be overwritten by its output", path)
	}

	rec := &palette.SceneRecord{Path: path, Output: out, ModTime: info.ModTime()}
	groups := []string{DefaultGroup}
	if rule, ok := b.dir.MatchScene(path); ok {
		rec.Matched = true
		if len(rule.Groups) > 0 {
			groups = rule.Groups
		}
	}
	for _, name := range groups {
		if err := errors.ValidateGroupName(name); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "scene file %s", path)
		}
		rec.Groups = append(rec.Groups, b.sess.Group(name).ID)
	}

	p := b.sess.Params
	err = f.ForEachTextureRef(func(ref scene.Ref) error {
		t := b.sess.Texture(ref.Name)
		src := ref.Path
		if !filepath.IsAbs(src) {
			src = filepath.Join(filepath.Dir(path), filepath.FromSlash(src))
		}
		if prev, ok := b.sources[t.ID]; ok && prev != src {
			b.warnf("texture %s: %s uses %s, another scene uses %s", t.Name, path, src, prev)
		} else {
			b.sources[t.ID] = src
		}
		if ref.UsesAlpha() {
			b.alpha[t.ID] = true
		}
		rec.Refs = append(rec.Refs, &palette.Reference{
			Name:      ref.Name,
			Texture:   t.ID,
			UVs:       f.ScanUVs(ref.Name, p.Remap, p.RemapChar),
			Wrap:      ref.Wrap,
			Transform: ref.Transform,
			Alpha:     ref.UsesAlpha(),
		})
		return nil
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "scene file %s", path)
	}

	prev := b.sess.Scene(path)
	rec.NeedsRebuild = prev == nil || prev.NeedsRebuild
	if outInfo, err := os.Stat(out); err != nil || info.ModTime().After(outInfo.ModTime()) {
		rec.NeedsRebuild = true
	}
	b.sess.AddScene(rec)
	b.files[path] = f
	return nil
}

// scanTextures reads the header of every referenced texture and applies the
// directive rule matching it. A texture no scanned scene references keeps
// what the session knew about it.
func (b *build) scanTextures(ctx context.Context) {
	for _, t := range b.sess.Textures() {
		src, ok := b.sources[t.ID]
		if !ok {
			continue
		}
		t.Source = src

		hdr, err := b.runner.Headers.ReadHeader(ctx, src)
		if err != nil {
			b.warnf("texture %s: cannot read %s: %v", t.Name, src, err)
			t.SizeKnown = false
			t.Channels = 0
			t.Alpha = b.alpha[t.ID]
		} else {
			t.Orig = palette.Size{W: hdr.W, H: hdr.H}
			t.SizeKnown = true
			t.Channels = hdr.Channels
			t.Alpha = hdr.HasAlpha() || b.alpha[t.ID]
		}
		if info, err := os.Stat(src); err == nil {
			t.ModTime = info.ModTime()
		} else {
			t.ModTime = time.Time{}
		}

		t.Request = palette.Size{}
		t.Scale = 0
		t.Margin, t.HasMargin = 0, false
		t.Omit = false
		t.Wrap = uv.WrapUnspecified
		t.Groups = nil
		t.Matched = false
		rule, ok := b.dir.MatchTexture(t.Name, src)
		if !ok {
			b.result.Surprises = append(b.result.Surprises, "texture "+t.Name)
			continue
		}
		t.Matched = true
		t.Request = palette.Size{W: rule.W, H: rule.H}
		t.Scale = rule.Scale
		t.Margin, t.HasMargin = rule.Margin, rule.HasMargin
		t.Omit = rule.Omit
		t.Wrap = rule.Wrap
		for _, name := range rule.Groups {
			if errors.ValidateGroupName(name) != nil {
				b.warnf("texture %s: ignoring invalid group %q", t.Name, name)
				continue
			}
			t.Groups = append(t.Groups, b.sess.Group(name).ID)
		}
	}
	for _, rec := range b.sess.Scenes() {
		if !rec.Matched {
			b.result.Surprises = append(b.result.Surprises, "scene "+rec.Path)
		}
	}
}

func sameFile(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
