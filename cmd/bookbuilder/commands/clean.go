package commands

import (
	"fmt"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
	"git.home.luguber.info/inful/bookbuilder/internal/workspace"
)

// CleanCmd removes every derived output. Chapter sources are never touched.
type CleanCmd struct{}

func (c *CleanCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if err := workspace.Clean(cfg, cfg.BuildFormats()); err != nil {
		return err
	}
	fmt.Println("Removed build tree and final artifacts")
	return nil
}
