//go:build headless

package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/openbadge/bridge/internal/board"
	"github.com/openbadge/bridge/internal/config"
	"github.com/openbadge/bridge/internal/orchestrator/logbook"
)

// openBoard runs without a sound card; inbound audio is counted and
// discarded.
func openBoard(_ *config.Config, book logbook.Book) (board.Board, error) {
	in := board.NewLineInput(os.Stdin)
	return &board.Kit{
		Presenter:   board.NewDisplay(book, slog.Default()),
		InputSource: in,
		Device:      board.NewNullAudio(),
		Closers:     []io.Closer{in},
	}, nil
}
