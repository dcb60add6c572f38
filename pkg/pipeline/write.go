package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/matzehuels/texpal/pkg/errors"
	"github.com/matzehuels/texpal/pkg/imageio"
	"github.com/matzehuels/texpal/pkg/observability"
	"github.com/matzehuels/texpal/pkg/palette"
	"github.com/matzehuels/texpal/pkg/scene"
	"github.com/matzehuels/texpal/pkg/state"
	"github.com/matzehuels/texpal/pkg/uv"
)

// stale assigns stand-alone copy paths and decides which scene files must
// be rewritten.
func (b *build) stale(context.Context) error {
	for _, pl := range b.sess.AllPlacements() {
		if pl.Packed || !pl.Reason.Standalone() {
			if pl.CopyPath != "" {
				b.obsolete = append(b.obsolete, pl.CopyPath)
				pl.CopyPath = ""
				pl.CopySize = palette.Size{}
			}
			continue
		}
		want := b.copyPath(pl)
		if want != pl.CopyPath {
			if pl.CopyPath != "" {
				b.obsolete = append(b.obsolete, pl.CopyPath)
			}
			pl.CopyPath = want
			pl.Filled = false
		}
	}
	bake := b.opts.Bake || b.dir.Bake
	b.rebuild = b.sess.MarkStale(bake, b.sourceNewer)
	b.logger.Debug("stale scenes", "count", len(b.rebuild), "bake", bake)
	return nil
}

// copyPath is where the stand-alone copy of an omitted texture goes: next
// to the group's pages, named after the texture.
func (b *build) copyPath(pl *palette.Placement) string {
	t := b.sess.TextureByID(pl.Texture)
	g := b.sess.GroupByID(pl.Group)
	return filepath.Join(g.OutputDir(b.sess.Params.MapDir), t.Name+"."+b.sess.Params.ImageType)
}

// target returns the output file holding a placement's pixels.
func (b *build) target(pl *palette.Placement) string {
	if pl.Packed {
		if p := b.sess.Page(pl.Page); p != nil {
			return p.Filename
		}
		return ""
	}
	return pl.CopyPath
}

// sourceNewer reports whether a placement's source image changed after its
// output file was last written. A missing output counts as older.
func (b *build) sourceNewer(pl *palette.Placement) bool {
	t := b.sess.TextureByID(pl.Texture)
	if t == nil || t.ModTime.IsZero() {
		return false
	}
	path := b.target(pl)
	if path == "" {
		return false
	}
	mt, ok := b.mtimes[path]
	if !ok {
		if info, err := os.Stat(path); err == nil {
			mt = info.ModTime()
		}
		b.mtimes[path] = mt
	}
	return t.ModTime.After(mt)
}

// write composes pages, writes stand-alone copies and rewrites the stale
// scene files. A failing file is recorded and the rest are still written.
func (b *build) write(ctx context.Context) error {
	for _, p := range b.sess.AllPages() {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCancelled, err, "write")
		}
		if !b.sess.PageNeedsWrite(p, b.sourceNewer) {
			continue
		}
		if err := b.writePage(ctx, p); err != nil {
			b.fail(p.Filename, err)
			continue
		}
		b.result.Pages = append(b.result.Pages, p.Filename)
	}

	for _, pl := range b.sess.AllPlacements() {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCancelled, err, "write")
		}
		if pl.Packed || !pl.Reason.Standalone() || pl.CopyPath == "" {
			continue
		}
		t := b.sess.TextureByID(pl.Texture)
		size, _ := t.PackSize()
		if pl.Filled && pl.CopySize == size && !b.sourceNewer(pl) {
			if _, err := os.Stat(pl.CopyPath); err == nil {
				continue
			}
		}
		if err := b.writeCopy(ctx, pl, size); err != nil {
			b.fail(pl.CopyPath, err)
			continue
		}
		b.result.Copies = append(b.result.Copies, pl.CopyPath)
	}

	for _, rec := range b.rebuild {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCancelled, err, "write")
		}
		if err := b.writeScene(rec); err != nil {
			b.fail(rec.Output, err)
			continue
		}
		b.result.Scenes = append(b.result.Scenes, rec.Output)
	}
	return nil
}

// writePage draws the placements that need it onto the page image. A page
// that already exists on disk is loaded and patched; a new page, or one
// whose file is unusable, is drawn from scratch.
func (b *build) writePage(ctx context.Context, p *palette.Page) error {
	start := time.Now()
	full := p.New
	var c *imageio.Canvas
	if !full {
		var ok bool
		if c, ok = imageio.LoadCanvas(p.Filename, p.W, p.H); !ok {
			full = true
		}
	} else {
		c = imageio.NewCanvas(p.W, p.H)
	}
	for _, r := range p.Cleared {
		c.Clear(image.Rect(r.X, r.Y, r.Right(), r.Bottom()))
	}

	var unread []*palette.Placement
	for _, pl := range p.Placements() {
		if !full && !b.sess.NeedsRefresh(pl, b.sourceNewer(pl)) {
			continue
		}
		img, err := b.placementPixels(pl)
		if err != nil {
			b.warnf("page %s: %v", p.Filename, err)
			c.Clear(image.Rect(pl.Rect.X, pl.Rect.Y, pl.Rect.Right(), pl.Rect.Bottom()))
			unread = append(unread, pl)
			continue
		}
		c.Blit(img, pl.Rect.X, pl.Rect.Y)
	}

	var out image.Image = c.Image()
	if p.Class == palette.ClassRGB {
		out = imageio.Opaque(c.Image())
	}
	err := imageio.WritePixels(p.Filename, out)
	observability.Pipeline().OnImageWritten(ctx, p.Filename, time.Since(start), err)
	if err != nil {
		return err
	}
	p.MarkWritten()
	for _, pl := range unread {
		pl.Filled = false
	}
	b.logger.Debug("wrote page", "path", p.Filename, "size", fmt.Sprintf("%dx%d", p.W, p.H),
		"placements", p.Len(), "full", full)
	return nil
}

// placementPixels returns a texture scaled to its packed size with the
// placement's margin around it.
func (b *build) placementPixels(pl *palette.Placement) (*image.NRGBA, error) {
	src, err := b.sourcePixels(pl.Texture)
	if err != nil {
		return nil, err
	}
	w, h := pl.Rect.W-2*pl.Margin, pl.Rect.H-2*pl.Margin
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("placement of %s has no room inside its margin", b.sess.TextureByID(pl.Texture).Name)
	}
	return imageio.AddMargin(imageio.Resize(src, w, h), pl.Margin), nil
}

func (b *build) sourcePixels(id palette.TextureID) (*image.NRGBA, error) {
	if r, ok := b.pixels[id]; ok {
		return r.img, r.err
	}
	t := b.sess.TextureByID(id)
	img, err := imageio.ReadPixels(t.Source)
	if err != nil {
		err = fmt.Errorf("texture %s: %w", t.Name, err)
	}
	b.pixels[id] = pixelResult{img: img, err: err}
	return img, err
}

func (b *build) writeCopy(ctx context.Context, pl *palette.Placement, size palette.Size) error {
	start := time.Now()
	src, err := b.sourcePixels(pl.Texture)
	if err != nil {
		return err
	}
	resized := imageio.Resize(src, size.W, size.H)
	var out image.Image = resized
	if !b.sess.TextureByID(pl.Texture).Alpha {
		out = imageio.Opaque(resized)
	}
	err = imageio.WritePixels(pl.CopyPath, out)
	observability.Pipeline().OnImageWritten(ctx, pl.CopyPath, time.Since(start), err)
	if err != nil {
		return err
	}
	pl.CopySize = size
	pl.MarkFilled()
	return nil
}

// writeScene rewrites the texture references of one scene file to point at
// their pages or copies and stores it at its output path.
func (b *build) writeScene(rec *palette.SceneRecord) error {
	f := b.files[rec.Path]
	if f == nil {
		var err error
		if f, err = scene.Read(rec.Path); err != nil {
			return err
		}
		for _, ref := range rec.Refs {
			f.ScanUVs(ref.Name, b.sess.Params.Remap, b.sess.Params.RemapChar)
		}
	}
	outDir := filepath.Dir(rec.Output)
	targets := make([]string, len(rec.Refs))
	for i, ref := range rec.Refs {
		pl := b.sess.Placement(ref.Texture, ref.Group)
		target := b.sess.Target(ref)
		targets[i] = target
		var err error
		switch {
		case pl != nil && pl.Packed:
			p := b.sess.Page(pl.Page)
			f.ApplyTranslation(ref.Name)
			m := uv.Compose(ref.Transform, uv.Remap(pl.Rect.X, pl.Rect.Y, pl.Rect.W, pl.Rect.H, pl.Margin, p.W, p.H))
			err = f.RewriteReference(ref.Name, relPath(outDir, target), m, uv.WrapClamp)
		case pl != nil && target != "":
			// The resolved wrap may be clamp only because of the shift.
			f.ApplyTranslation(ref.Name)
			err = f.RewriteReference(ref.Name, relPath(outDir, target), ref.Transform, pl.Wrap)
		default:
			t := b.sess.TextureByID(ref.Texture)
			err = f.RewriteReference(ref.Name, relPath(outDir, t.Source), ref.Transform, uv.WrapUnspecified)
		}
		if err != nil {
			return err
		}
	}
	if err := f.Write(rec.Output); err != nil {
		return err
	}
	for i, ref := range rec.Refs {
		ref.Target = targets[i]
	}
	rec.NeedsRebuild = false
	b.logger.Debug("wrote scene", "path", rec.Output, "refs", len(rec.Refs))
	return nil
}

func relPath(dir, target string) string {
	if rel, err := filepath.Rel(dir, target); err == nil {
		return rel
	}
	if abs, err := filepath.Abs(target); err == nil {
		return abs
	}
	return target
}

// store removes files that no longer belong to the session and saves it.
func (b *build) store(ctx context.Context, store state.Store) error {
	live := make(map[string]bool)
	for _, p := range b.sess.AllPages() {
		live[p.Filename] = true
	}
	for _, pl := range b.sess.AllPlacements() {
		if pl.CopyPath != "" {
			live[pl.CopyPath] = true
		}
	}
	for _, rec := range b.sess.Scenes() {
		live[rec.Output] = true
	}
	removed := make(map[string]bool)
	for _, path := range append(b.sess.Obsolete(), b.obsolete...) {
		if path == "" || live[path] || removed[path] {
			continue
		}
		removed[path] = true
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				b.warnf("cannot remove %s: %v", path, err)
			}
			continue
		}
		b.result.Removed = append(b.result.Removed, path)
		b.logger.Debug("removed obsolete file", "path", path)
	}
	b.sess.ClearObsolete()

	if err := store.Save(ctx, b.sess.Snapshot()); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "save session %s", b.opts.Session)
	}
	return nil
}
