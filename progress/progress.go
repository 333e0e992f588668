package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mailbox-export/export"
	"github.com/dhcgn/mailbox-export/stats"
)

// MaxErrorsShown caps the error lines printed by PrintSummary.
const MaxErrorsShown = 20

// Bar shows one progress bar per folder while it is exported.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	folder  string
	folders int
	mu      sync.Mutex
	enabled bool
}

// New creates a progress bar if logLevel is "info".
func New(logLevel string) *Bar {
	return &Bar{enabled: logLevel == "info"}
}

// Update advances the bar based on the event type.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeFolderStarted:
		b.stopLocked()
		b.folders++
		b.folder = evt.Folder
		if evt.Total == 0 {
			pterm.Info.Printf("%s: empty\n", evt.Folder)
			return
		}
		pb, err := pterm.DefaultProgressbar.
			WithTotal(evt.Total).
			WithTitle(truncate(evt.Folder, 40)).
			Start()
		if err == nil {
			b.pb = pb
		}
	case stats.EventTypeExported, stats.EventTypeDuplicate, stats.EventTypeNonMail:
		if b.pb != nil {
			b.pb.Increment()
		}
	case stats.EventTypeError:
		// Show error messages above the progress bar
		if evt.Err != nil {
			pterm.Error.Printf("%v\n", evt.Err)
		}
		if b.pb != nil && evt.Folder == b.folder {
			b.pb.Increment()
		}
	case stats.EventTypeFolderFinished:
		b.stopLocked()
	}
}

func (b *Bar) stopLocked() {
	if b.pb == nil {
		return
	}
	if b.pb.Current < b.pb.Total {
		b.pb.Current = b.pb.Total
	}
	_, _ = b.pb.Stop()
	b.pb = nil
}

// Stop finalizes a bar left open by a cancelled export.
func (b *Bar) Stop() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

// Subscriber consumes stats events and updates the progress bar.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	defer b.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// ProgressReporter combines the progress bar with a stats collector.
type ProgressReporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewProgressReporter subscribes bar and a collector to stream. Nothing is
// subscribed when the bar is disabled.
func NewProgressReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *ProgressReporter {
	reporter := &ProgressReporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collectStats)
	}

	return reporter
}

func (pr *ProgressReporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	pr.collector.Run(ctx, events)
	if pr.logger != nil {
		pr.logger.Debug("progress finished", append(pr.collector.Snapshot().LogAttrs(), "duration", time.Since(pr.started))...)
	}
	return nil
}

// Summary returns the counters seen by the reporter so far.
func (pr *ProgressReporter) Summary() stats.Summary {
	return pr.collector.Snapshot()
}

// PrintSummary prints the totals of an export, at most MaxErrorsShown error
// lines and the export location.
func PrintSummary(out export.Outcome, location string) {
	pterm.Println()
	pterm.DefaultSection.Println("Export Complete")
	pterm.Info.Printf("Total emails exported: %d\n", out.Processed)
	pterm.Info.Printf("Total duplicates skipped (file already exists): %d\n", out.SkippedDuplicates)
	pterm.Info.Printf("Total non-mail items skipped: %d\n", out.SkippedNonMail)

	if len(out.Errors) == 0 {
		pterm.Success.Println("No errors encountered during export.")
	} else {
		pterm.Println()
		pterm.Warning.Printf("Encountered %d errors during export:\n", len(out.Errors))
		for _, line := range ErrorLines(out.Messages(), MaxErrorsShown) {
			pterm.Println(line)
		}
	}

	pterm.Println()
	pterm.Info.Printf("Export location: %s\n", location)
}

// ErrorLines renders up to limit messages as list lines, followed by a
// remainder line when some were left out.
func ErrorLines(messages []string, limit int) []string {
	lines := make([]string, 0, min(len(messages), limit)+1)
	for i, msg := range messages {
		if i >= limit {
			lines = append(lines, fmt.Sprintf("... (and %d more errors)", len(messages)-limit))
			break
		}
		lines = append(lines, "- "+msg)
	}
	return lines
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
