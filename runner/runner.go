package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/mailbox-export/config"
	"github.com/dhcgn/mailbox-export/export"
	"github.com/dhcgn/mailbox-export/imap"
	"github.com/dhcgn/mailbox-export/mbox"
	"github.com/dhcgn/mailbox-export/model"
	"github.com/dhcgn/mailbox-export/stats"
)

// Runner exports the selected folders one after another and fans the
// exporter's events out to stats subscribers.
type Runner struct {
	logger   *slog.Logger
	exporter *export.Exporter

	subscribers []chan stats.Event
	statsWG     sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeEventsOnce sync.Once
}

func New(exporter *export.Exporter, logger *slog.Logger) *Runner {
	r := &Runner{
		logger:   logger,
		exporter: exporter,
	}
	exporter.WithObserver(r.EmitEvent)
	return r
}

// EmitEvent hands evt to every subscriber. Without subscribers it is dropped.
func (r *Runner) EmitEvent(evt stats.Event) {
	for _, ch := range r.subscribers {
		ch <- evt
	}
}

// SubscribeStats starts fn on its own copy of the event stream. All
// subscribers must be registered before Run.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	events := make(chan stats.Event, 128)
	r.subscribers = append(r.subscribers, events)
	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(context.Background(), events); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
		// keep draining so EmitEvent never blocks on a finished subscriber
		for range events {
		}
	}()
}

// Run exports entries sequentially below outputBase and returns the combined
// outcome. A cancelled ctx stops after the current item; the partial outcome
// is returned together with the context error.
func (r *Runner) Run(ctx context.Context, entries []model.DisplayEntry, outputBase string) (export.Outcome, error) {
	since := time.Now()
	defer r.closeEvents()

	var total export.Outcome
	for _, entry := range entries {
		if r.logger != nil {
			r.logger.Debug("processing folder", "folder", entry.DisplayName)
		}
		out, err := r.exporter.Export(ctx, entry.Folder, outputBase)
		total = total.Add(out)
		if err != nil {
			r.fail(err)
			break
		}
	}

	r.closeEvents()
	r.statsWG.Wait()

	duration := time.Since(since)
	r.errMu.Lock()
	err := r.err
	r.errMu.Unlock()
	if err != nil {
		if r.logger != nil {
			r.logger.Error("export failed", append([]any{"duration", duration, "err", err}, outcomeAttrs(total)...)...)
		}
		return total, err
	}

	if r.logger != nil {
		r.logger.Info("export completed", append([]any{"duration", duration}, outcomeAttrs(total)...)...)
	}
	return total, nil
}

func outcomeAttrs(o export.Outcome) []any {
	return []any{
		"exported", o.Processed,
		"duplicates", o.SkippedDuplicates,
		"nonMail", o.SkippedNonMail,
		"errors", len(o.Errors),
	}
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		for _, ch := range r.subscribers {
			close(ch)
		}
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.errMu.Unlock()
}

// OpenSession connects to the mail source named by cfg.Source.
func OpenSession(ctx context.Context, cfg config.Config, logger *slog.Logger) (model.Session, error) {
	switch cfg.Source {
	case config.SourceIMAP:
		session, err := imap.Dial(ctx, imap.Options{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			StartTLS:           cfg.StartTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("imap: %w", err)
		}
		return session, nil
	case config.SourceMbox:
		session, err := mbox.Open(mbox.Options{Path: cfg.MboxPath}, logger)
		if err != nil {
			return nil, fmt.Errorf("mbox: %w", err)
		}
		return session, nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}
