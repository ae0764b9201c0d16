package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	bberrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
)

// Config represents the book configuration loaded from book.yaml.
type Config struct {
	Title    string `yaml:"title"`
	Subtitle string `yaml:"subtitle,omitempty"`
	Author   string `yaml:"author,omitempty"`
	Date     string `yaml:"date,omitempty"` // overrides the revision commit date in document metadata
	Language string `yaml:"language,omitempty"`

	// Chapters is the ordered chapter list: the single source of truth for
	// document structure. Order is preserved verbatim through every stage.
	Chapters []string `yaml:"chapters"`

	BuildDir  string   `yaml:"build_dir,omitempty"`
	OutputDir string   `yaml:"output_dir,omitempty"`
	Formats   []string `yaml:"formats,omitempty"`

	// Defines are extra macro symbols available in every chapter, in addition
	// to the per-build format symbol (PDF, EPUB, DOCX, HTML).
	Defines map[string]string `yaml:"defines,omitempty"`

	Bibliography string `yaml:"bibliography,omitempty"`
	TOCDepth     int    `yaml:"toc_depth,omitempty"`

	PDF     PDFConfig     `yaml:"pdf,omitempty"`
	EPUB    EPUBConfig    `yaml:"epub,omitempty"`
	DOCX    DOCXConfig    `yaml:"docx,omitempty"`
	Weave   WeaveConfig   `yaml:"weave,omitempty"`
	History HistoryConfig `yaml:"history,omitempty"`
	Notify  NotifyConfig  `yaml:"notify,omitempty"`
	Preview PreviewConfig `yaml:"preview,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`

	// dir is the directory containing the loaded config file; chapter and
	// asset paths resolve relative to it.
	dir  string
	path string
}

// PDFConfig holds the paginated-output options.
type PDFConfig struct {
	Engine   string `yaml:"engine,omitempty"`   // pdf engine binary (default xelatex)
	Template string `yaml:"template,omitempty"` // optional pandoc template path
}

// EPUBConfig holds the e-book package options.
type EPUBConfig struct {
	CoverImage            string `yaml:"cover_image,omitempty"`
	DefaultImageExtension string `yaml:"default_image_extension,omitempty"` // e.g. ".png"
}

// DOCXConfig holds the word-processor export options.
type DOCXConfig struct {
	ReferenceDoc string `yaml:"reference_doc,omitempty"`
}

// WeaveConfig tunes executable-block evaluation.
type WeaveConfig struct {
	Timeout      string `yaml:"timeout,omitempty"`       // duration string per block (default 30s)
	FigureFormat string `yaml:"figure_format,omitempty"` // raster extension for generated figures (default png)
}

// BlockTimeout returns the parsed per-block timeout.
// Validate guarantees the string parses; the zero fallback guards direct use.
func (w WeaveConfig) BlockTimeout() time.Duration {
	d, err := time.ParseDuration(w.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// HistoryConfig controls the local build-history store.
type HistoryConfig struct {
	// Path to the sqlite database file. Empty disables history recording.
	Path string `yaml:"path,omitempty"`
}

// NotifyConfig controls build event publishing.
type NotifyConfig struct {
	// URL of the NATS server. Empty disables publishing.
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// PreviewConfig tunes the local preview server.
type PreviewConfig struct {
	Port            int    `yaml:"port,omitempty"`
	RebuildInterval string `yaml:"rebuild_interval,omitempty"` // duration string; empty disables periodic rebuilds
}

// Interval returns the parsed periodic rebuild interval, or zero when disabled.
func (p PreviewConfig) Interval() time.Duration {
	if p.RebuildInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(p.RebuildInterval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// MetricsConfig controls the preview server's metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env files if present; existing process env is never overridden.
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				fmt.Fprintf(os.Stderr, "Note: %s could not be loaded: %v\n", envPath, err)
			}
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, bberrors.ConfigNotFound(configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, bberrors.WrapError(err, bberrors.CategoryConfig, "failed to read config file")
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, bberrors.WrapError(err, bberrors.CategoryConfig, "failed to parse config file")
	}

	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, bberrors.WrapError(err, bberrors.CategoryConfig, "resolve config path")
	}
	config.path = abs
	config.dir = filepath.Dir(abs)

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Path returns the absolute path of the loaded config file.
func (c *Config) Path() string { return c.path }

// Dir returns the directory containing the loaded config file.
func (c *Config) Dir() string { return c.dir }

// Resolve resolves a config-relative path against the config directory.
// Absolute paths pass through unchanged.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// BuildRoot returns the absolute build directory.
func (c *Config) BuildRoot() string { return c.Resolve(c.BuildDir) }

// OutputRoot returns the absolute output directory for final artifacts.
func (c *Config) OutputRoot() string { return c.Resolve(c.OutputDir) }

// BuildFormats returns the configured output formats, normalized.
// Validate has already rejected unknown names.
func (c *Config) BuildFormats() []Format {
	formats, _ := ParseFormats(c.Formats)
	if len(formats) == 0 {
		return append([]Format(nil), DefaultFormats...)
	}
	return formats
}
