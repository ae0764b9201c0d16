package commands

import (
	"fmt"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
	"git.home.luguber.info/inful/bookbuilder/internal/manuscript"
)

// ChaptersCmd prints the resolved chapter model without building anything.
type ChaptersCmd struct{}

func (c *ChaptersCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	chapters, err := manuscript.Resolve(cfg)
	if err != nil {
		return err
	}

	for _, ch := range chapters {
		line := fmt.Sprintf("%2d  %-24s %s", ch.Seq, ch.ID, ch.Title)
		if ch.Executable > 0 {
			line = fmt.Sprintf("%s (%d executable)", line, ch.Executable)
		}
		fmt.Println(line)
	}
	fmt.Printf("%d chapters\n", len(chapters))
	return nil
}
