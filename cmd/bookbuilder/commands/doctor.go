package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"git.home.luguber.info/inful/bookbuilder/internal/compile"
	"git.home.luguber.info/inful/bookbuilder/internal/config"
)

// DoctorCmd reports whether the external toolchain builds shell out to is
// installed: pandoc, the pandoc-crossref filter, and the pdf engine.
type DoctorCmd struct {
	JSON bool `help:"Emit the report as JSON"`
}

// toolStatus is the check result for one external binary.
type toolStatus struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Found    bool   `json:"found"`
	Path     string `json:"path,omitempty"`
	Version  string `json:"version,omitempty"`
	Note     string `json:"note,omitempty"`
}

// doctorReport aggregates all checks.
type doctorReport struct {
	Status string       `json:"status"` // ready | degraded | not-ready
	Tools  []toolStatus `json:"tools"`
}

func (d *DoctorCmd) Run(_ *Global, root *CLI) error {
	// The pdf engine comes from the config when one is loadable; doctor
	// still works in a directory without book.yaml.
	engine := config.DefaultPDFEngine
	if cfg, err := config.Load(root.Config); err == nil && cfg.PDF.Engine != "" {
		engine = cfg.PDF.Engine
	}

	report := doctorReport{Status: "ready"}
	runner := &compile.ExecRunner{Quiet: true}
	for _, p := range compile.Doctor(context.Background(), runner, engine) {
		required, note := false, "pdf engine; only pdf builds need it"
		switch p.Name {
		case "pandoc":
			required, note = true, "every build shells out to pandoc"
		case "pandoc-crossref":
			required, note = true, "crossref filter for @fig:/@tbl:/@sec: references"
		}
		report.add(toolStatus{
			Name:     p.Name,
			Required: required,
			Found:    p.Available,
			Path:     p.Path,
			Version:  p.Version,
			Note:     note,
		})
	}

	if d.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printDoctorReport(report)
	}

	if report.Status == "not-ready" {
		return fmt.Errorf("required tools are missing")
	}
	return nil
}

func (r *doctorReport) add(t toolStatus) {
	r.Tools = append(r.Tools, t)
	if t.Found {
		return
	}
	if t.Required {
		r.Status = "not-ready"
	} else if r.Status == "ready" {
		r.Status = "degraded"
	}
}

func printDoctorReport(r doctorReport) {
	fmt.Println("bookbuilder doctor")
	fmt.Println()
	for _, t := range r.Tools {
		switch {
		case t.Found && t.Version != "":
			fmt.Printf("  [OK]      %-16s %s\n", t.Name, t.Version)
		case t.Found:
			fmt.Printf("  [OK]      %-16s %s\n", t.Name, t.Path)
		case t.Required:
			fmt.Printf("  [MISSING] %-16s required: %s\n", t.Name, t.Note)
		default:
			fmt.Printf("  [MISSING] %-16s %s\n", t.Name, t.Note)
		}
	}
	fmt.Println()

	switch r.Status {
	case "ready":
		fmt.Println("Status: ready to build")
	case "degraded":
		fmt.Println("Status: ready with limitations")
	case "not-ready":
		fmt.Println("Status: not ready (install the missing tools)")
	}
}
