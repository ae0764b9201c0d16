package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
	bberrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
	"git.home.luguber.info/inful/bookbuilder/internal/history"
)

// HistoryCmd lists recorded builds from the sqlite history store.
type HistoryCmd struct {
	Limit int    `short:"n" default:"20" help:"Number of builds to show"`
	Build string `help:"Show every target of one build id instead"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return bberrors.ConfigRequired("history.path")
	}

	store, err := history.NewSQLiteStore(cfg.Resolve(cfg.History.Path))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	var records []history.Record
	if h.Build != "" {
		records, err = store.ByBuildID(ctx, h.Build)
	} else {
		records, err = store.Recent(ctx, h.Limit)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No recorded builds")
		return nil
	}

	for _, rec := range records {
		line := fmt.Sprintf("%s  %s  %-5s %-8s %2d chapters  %s",
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			shortID(rec.BuildID), rec.Format, rec.Outcome, rec.Chapters,
			rec.Duration().Truncate(time.Millisecond))
		if rec.Revision != "" {
			line += "  " + rec.Revision
		}
		if rec.Error != "" {
			line += "  " + firstLine(rec.Error)
		}
		fmt.Println(line)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
