package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// progressReporter shows encode progress as a bar on terminals and as log
// lines at every tenth percent elsewhere.
type progressReporter struct {
	bar    *progressbar.ProgressBar
	logger *slog.Logger
	last   int
}

func newProgressReporter(w io.Writer, logger *slog.Logger) *progressReporter {
	p := &progressReporter{logger: logger, last: -1}
	if isTerminal(w) {
		p.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("encoding"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(w, "\n") }),
		)
	}
	return p
}

// Update receives progress percentages from the controller.
func (p *progressReporter) Update(percent float64) {
	pct := int(percent)
	if p.bar != nil {
		_ = p.bar.Set(pct)
		return
	}
	if step := pct / 10 * 10; step > p.last {
		p.last = step
		p.logger.Info("encoding", slog.Int("percent", step))
	}
}

// Done finishes the bar. A failed run leaves it where it stopped.
func (p *progressReporter) Done(success bool) {
	if p.bar == nil {
		return
	}
	if success {
		_ = p.bar.Finish()
		return
	}
	_ = p.bar.Exit()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
