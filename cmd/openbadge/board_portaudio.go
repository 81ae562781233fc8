//go:build !headless

package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/openbadge/bridge/internal/audio"
	"github.com/openbadge/bridge/internal/board"
	"github.com/openbadge/bridge/internal/config"
	"github.com/openbadge/bridge/internal/hfp"
	"github.com/openbadge/bridge/internal/orchestrator/logbook"
)

// openBoard drives the speaker and microphone through PortAudio. Each line
// on stdin is a press of the badge button.
func openBoard(cfg *config.Config, book logbook.Book) (board.Board, error) {
	dev, err := audio.Open(audio.Config{
		SampleRate: hfp.NarrowbandRate,
		Buffer:     cfg.AudioBuffer,
		QueueDepth: cfg.AudioQueueDepth,
		DeviceName: cfg.AudioDevice,
	})
	if err != nil {
		return nil, err
	}
	in := board.NewLineInput(os.Stdin)
	return &board.Kit{
		Presenter:   board.NewDisplay(book, slog.Default()),
		InputSource: in,
		Device:      dev,
		Closers:     []io.Closer{in, dev},
	}, nil
}
