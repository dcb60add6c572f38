package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/texpal/pkg/directive"
	"github.com/matzehuels/texpal/pkg/errors"
	"github.com/matzehuels/texpal/pkg/imageio"
	"github.com/matzehuels/texpal/pkg/palette"
	"github.com/matzehuels/texpal/pkg/uv"
)

// ConfigFileName is the project config looked up in the working directory.
const ConfigFileName = "texpal.toml"

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Config is the TOML project configuration. Every field is optional.
//
//	page_w = 1024
//	page_h = 1024
//	margin = 4
//	image_type = "webp"
//	remap = "group"
//	session = "mongodb://db.internal/texpal?session=town"
//	cache = "redis"
//	redis = "redis://cache.internal:6379/0"
type Config struct {
	PageW        int      `toml:"page_w"`
	PageH        int      `toml:"page_h"`
	Margin       *int     `toml:"margin"`
	ImageType    string   `toml:"image_type"`
	Pattern      string   `toml:"pattern"`
	Remap        string   `toml:"remap"`
	RemapChar    string   `toml:"remap_char"`
	Fuzz         *float64 `toml:"fuzz"`
	Repeat       string   `toml:"repeat"`
	OmitSolitary *bool    `toml:"omit_solitary"`

	MapDir  string `toml:"map_dir"`
	OutDir  string `toml:"out_dir"`
	Session string `toml:"session"`

	Cache    string `toml:"cache"`
	CacheDir string `toml:"cache_dir"`
	Redis    string `toml:"redis"`

	// CachePrefix namespaces header keys, for projects sharing one Redis.
	CachePrefix string `toml:"cache_prefix"`
}

// LoadConfig reads a TOML config file. Unknown keys are an error so typos
// do not pass silently.
func LoadConfig(path string) (*Config, error) {
	var c Config
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.New(errors.ErrCodeInvalidConfig, "%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := c.validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s", path)
	}
	return &c, nil
}

// LoadConfigIfExists reads path when it exists and returns an empty config
// otherwise.
func LoadConfigIfExists(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}
	return LoadConfig(path)
}

func (c *Config) validate() error {
	if c.PageW != 0 || c.PageH != 0 {
		if err := errors.ValidatePageSize(c.PageW, c.PageH); err != nil {
			return err
		}
	}
	if c.ImageType != "" && !imageio.Supported(c.ImageType) {
		return fmt.Errorf("unsupported image type %q", c.ImageType)
	}
	if c.Pattern != "" {
		if err := errors.ValidatePattern(c.Pattern); err != nil {
			return err
		}
	}
	for _, p := range []string{c.Remap, c.RemapChar} {
		if p != "" {
			if _, err := uv.ParsePolicy(p); err != nil {
				return err
			}
		}
	}
	if c.Repeat != "" {
		if _, err := uv.ParseRepeatPolicy(c.Repeat); err != nil {
			return err
		}
	}
	switch c.Cache {
	case "", CacheFile, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache)
	}
	if c.Cache == CacheRedis && c.Redis == "" {
		return fmt.Errorf("cache = %q needs a redis address", CacheRedis)
	}
	return nil
}

// apply overrides p with the values the config sets. A nil config sets
// nothing.
func (c *Config) apply(p *palette.Params) {
	if c == nil {
		return
	}
	if c.PageW != 0 {
		p.PageW, p.PageH = c.PageW, c.PageH
	}
	if c.Margin != nil {
		p.Margin = *c.Margin
	}
	if c.ImageType != "" {
		p.ImageType = c.ImageType
	}
	if c.Pattern != "" {
		p.Pattern = c.Pattern
	}
	if pol, err := uv.ParsePolicy(c.Remap); err == nil && c.Remap != "" {
		p.Remap = pol
	}
	if pol, err := uv.ParsePolicy(c.RemapChar); err == nil && c.RemapChar != "" {
		p.RemapChar = pol
	}
	if c.Fuzz != nil {
		p.Fuzz = *c.Fuzz
	}
	if rp, err := uv.ParseRepeatPolicy(c.Repeat); err == nil && c.Repeat != "" {
		p.Repeat = rp
	}
	if c.OmitSolitary != nil {
		p.OmitSolitary = *c.OmitSolitary
	}
}

// DefaultCacheDir returns the header cache directory: $XDG_CACHE_HOME/texpal,
// falling back to the user cache directory.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "texpal")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "texpal")
	}
	return filepath.Join(os.TempDir(), "texpal-cache")
}

// directiveParams applies the keyword lines of a directive file.
type directiveParams struct {
	f *directive.File
}

func (d directiveParams) apply(p *palette.Params) {
	f := d.f
	if f == nil {
		return
	}
	if f.PageW != 0 {
		p.PageW, p.PageH = f.PageW, f.PageH
	}
	if f.Margin != nil {
		p.Margin = *f.Margin
	}
	if f.ImageType != "" {
		p.ImageType = f.ImageType
	}
	if f.Remap != nil {
		p.Remap = *f.Remap
	}
	if f.RemapChar != nil {
		p.RemapChar = *f.RemapChar
	}
	if f.Fuzz != nil {
		p.Fuzz = *f.Fuzz
	}
	if f.Repeat != nil {
		p.Repeat = *f.Repeat
	}
	if f.OmitSolitary != nil {
		p.OmitSolitary = *f.OmitSolitary
	}
}
