package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const starterChapter = `# Introduction

Welcome to your new book. Edit this chapter and add more files to the
` + "`chapters`" + ` list in book.yaml.

#ifdef PDF
This paragraph only appears in the PDF edition.
#endif

` + "```" + `go run name=hello
fmt.Println("Hello from an executable block.")
` + "```" + `
`

// Init creates a new configuration file with example content plus a starter
// chapter so the scaffold builds out of the box.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	exampleConfig := Config{
		Title:    "My Book",
		Author:   "Author Name",
		Language: DefaultLanguage,
		Chapters: []string{"chapters/01-introduction.md"},
		Formats:  []string{"pdf", "epub", "docx"},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	dir := filepath.Dir(configPath)
	chapterPath := filepath.Join(dir, "chapters", "01-introduction.md")
	if _, err := os.Stat(chapterPath); err == nil && !force {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(chapterPath), 0755); err != nil {
		return fmt.Errorf("failed to create chapters directory: %w", err)
	}
	if err := os.WriteFile(chapterPath, []byte(starterChapter), 0644); err != nil {
		return fmt.Errorf("failed to write starter chapter: %w", err)
	}

	return nil
}
