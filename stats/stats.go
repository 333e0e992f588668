package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventTypeFolderStarted  EventType = "folder_started"
	EventTypeFolderFinished EventType = "folder_finished"
	EventTypeExported       EventType = "exported"
	EventTypeDuplicate      EventType = "duplicate"
	EventTypeNonMail        EventType = "non_mail"
	EventTypeError          EventType = "error"
)

// Event is emitted by the exporter for every folder and item it handles.
// Total is only set on folder_started.
type Event struct {
	Type   EventType
	Folder string
	Path   string
	Total  int
	Err    error
}

type Summary struct {
	Folders    int
	Exported   int
	Duplicates int
	NonMail    int
	Errors     int
	LastError  error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"folders", s.Folders,
		"exported", s.Exported,
		"duplicates", s.Duplicates,
		"nonMail", s.NonMail,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeFolderFinished:
		c.summary.Folders++
	case EventTypeExported:
		c.summary.Exported++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypeNonMail:
		c.summary.NonMail++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}
