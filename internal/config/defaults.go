package config

// Default values applied after unmarshal. Explicit config always wins.
const (
	DefaultBuildDir  = "build"
	DefaultOutputDir = "dist"
	DefaultLanguage  = "en"
	DefaultTOCDepth  = 1

	DefaultPDFEngine    = "xelatex"
	DefaultWeaveTimeout = "30s"
	DefaultFigureFormat = "png"

	DefaultPreviewPort = 8080
	DefaultMetricsPath = "/metrics"
	DefaultSubject     = "bookbuilder.builds"
)

func (c *Config) applyDefaults() {
	if c.BuildDir == "" {
		c.BuildDir = DefaultBuildDir
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.TOCDepth == 0 {
		c.TOCDepth = DefaultTOCDepth
	}
	if len(c.Formats) == 0 {
		for _, f := range DefaultFormats {
			c.Formats = append(c.Formats, string(f))
		}
	}
	if c.PDF.Engine == "" {
		c.PDF.Engine = DefaultPDFEngine
	}
	if c.Weave.Timeout == "" {
		c.Weave.Timeout = DefaultWeaveTimeout
	}
	if c.Weave.FigureFormat == "" {
		c.Weave.FigureFormat = DefaultFigureFormat
	}
	if c.Preview.Port == 0 {
		c.Preview.Port = DefaultPreviewPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Notify.URL != "" && c.Notify.Subject == "" {
		c.Notify.Subject = DefaultSubject
	}
}
