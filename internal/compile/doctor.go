package compile

import (
	"context"
	"os/exec"
	"strings"
)

// Probe is the availability report for one external tool.
type Probe struct {
	Name      string
	Path      string
	Version   string
	Available bool
}

// Doctor probes the external tools a build depends on: pandoc, the
// crossref filter, and the configured PDF engine.
func Doctor(ctx context.Context, runner CommandRunner, pdfEngine string) []Probe {
	tools := []string{"pandoc", "pandoc-crossref"}
	if pdfEngine != "" {
		tools = append(tools, pdfEngine)
	}

	probes := make([]Probe, 0, len(tools))
	for _, name := range tools {
		probes = append(probes, probeTool(ctx, runner, name))
	}
	return probes
}

func probeTool(ctx context.Context, runner CommandRunner, name string) Probe {
	p := Probe{Name: name}

	path, err := exec.LookPath(name)
	if err != nil {
		return p
	}
	p.Path = path
	p.Available = true

	stdout, _, err := runner.Run(ctx, name, "--version")
	if err == nil {
		p.Version = firstLine(stdout)
	}
	return p
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
