// Package export writes the mail items of a folder to individual files.
package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhcgn/mailbox-export/manifest"
	"github.com/dhcgn/mailbox-export/model"
	"github.com/dhcgn/mailbox-export/sanitize"
	"github.com/dhcgn/mailbox-export/stats"
)

// ErrUnsafePath is returned for folder paths that would leave the output base.
var ErrUnsafePath = errors.New("unsafe folder path")

const (
	// TimeLayout formats the received time at the start of every file name.
	TimeLayout = "2006-01-02_15-04-05"
	// UnknownTime replaces the time token when an item has no received time.
	UnknownTime = "UnknownTime"
	// NoSubject replaces the subject of items that have none.
	NoSubject = "No Subject"
	// DefaultExtension is appended to every exported file name.
	DefaultExtension = ".msg"

	unknownSubject = "Unknown Subject"
	// store-level prefix of a folder path: "", "", <store>
	storePrefixSegments = 3
)

type Options struct {
	// MailClass is the item class that gets exported. Defaults to model.ClassMail.
	MailClass model.ItemClass
	// Format is passed to Item.SaveAs. Defaults to model.SaveFormatRFC822.
	Format model.SaveFormat
	// Extension including the leading dot. Defaults to DefaultExtension.
	Extension string
	// Location of the received time in file names. Defaults to time.Local.
	Location *time.Location
}

// Exporter exports one folder at a time. It is not safe for concurrent use;
// the underlying session is not either.
type Exporter struct {
	opts     Options
	logger   *slog.Logger
	recorder manifest.Recorder
	observe  func(stats.Event)
}

func New(opts Options, logger *slog.Logger) *Exporter {
	if opts.MailClass == "" {
		opts.MailClass = model.ClassMail
	}
	if opts.Format == "" {
		opts.Format = model.SaveFormatRFC822
	}
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if !strings.HasPrefix(opts.Extension, ".") {
		opts.Extension = "." + opts.Extension
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Exporter{opts: opts, logger: logger}
}

// WithRecorder records every exported file in rec.
func (e *Exporter) WithRecorder(rec manifest.Recorder) *Exporter {
	e.recorder = rec
	return e
}

// WithObserver sends a stats event for every folder and item to fn.
func (e *Exporter) WithObserver(fn func(stats.Event)) *Exporter {
	e.observe = fn
	return e
}

// OutputDir returns the directory folder is exported to below outputBase.
// Paths deeper than the store prefix are mirrored verbatim; shallower ones
// use the sanitized folder name. Segments that would not name a single
// directory ("", ".", "..", or containing a separator) are sanitized, and the
// result must stay below outputBase.
func OutputDir(folder model.Folder, outputBase string) (string, error) {
	parts := strings.Split(folder.FolderPath(), `\`)
	if len(parts) <= storePrefixSegments {
		return filepath.Join(outputBase, sanitize.Filename(folder.Name())), nil
	}

	elems := []string{outputBase}
	for _, part := range parts[storePrefixSegments:] {
		if !plainSegment(part) {
			part = sanitize.Filename(part)
		}
		elems = append(elems, part)
	}
	dir := filepath.Join(elems...)

	rel, err := filepath.Rel(filepath.Clean(outputBase), dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q resolves outside %s", ErrUnsafePath, folder.FolderPath(), outputBase)
	}
	return dir, nil
}

func plainSegment(part string) bool {
	switch part {
	case "", ".", "..":
		return false
	}
	return !strings.ContainsAny(part, "/"+string(filepath.Separator)) && filepath.VolumeName(part) == ""
}

// FileName builds the export file name from an item's time token and subject.
func (e *Exporter) FileName(timeToken, subject string) string {
	return timeToken + "_" + sanitize.Filename(subject) + e.opts.Extension
}

// Export writes every mail item of folder below outputBase and reports the
// counts for this folder. Items that fail are recorded in the outcome and do
// not stop the loop. The returned error is non-nil only when ctx is done.
func (e *Exporter) Export(ctx context.Context, folder model.Folder, outputBase string) (Outcome, error) {
	var out Outcome
	name := folder.Name()

	dir, err := OutputDir(folder, outputBase)
	if err != nil {
		out.Errors = append(out.Errors, &FolderError{Folder: name, Op: "resolve output directory", Err: err})
		e.emit(stats.Event{Type: stats.EventTypeError, Folder: name, Err: err})
		return out, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		out.Errors = append(out.Errors, &FolderError{Folder: name, Op: "create output directory", Err: err})
		e.emit(stats.Event{Type: stats.EventTypeError, Folder: name, Path: dir, Err: err})
		return out, nil
	}

	items, err := folder.Items()
	if err != nil {
		out.Errors = append(out.Errors, &FolderError{Folder: name, Op: "list items", Err: err})
		e.emit(stats.Event{Type: stats.EventTypeError, Folder: name, Err: err})
		return out, nil
	}

	if e.logger != nil {
		e.logger.Info("exporting folder", "folder", name, "dir", dir, "items", len(items))
	}
	e.emit(stats.Event{Type: stats.EventTypeFolderStarted, Folder: name, Path: dir, Total: len(items)})

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		e.exportItem(folder, dir, i, item, &out)
	}

	if e.logger != nil {
		e.logger.Info("finished folder", "folder", name, "exported", out.Processed,
			"duplicates", out.SkippedDuplicates, "nonMail", out.SkippedNonMail, "errors", len(out.Errors))
	}
	e.emit(stats.Event{Type: stats.EventTypeFolderFinished, Folder: name, Path: dir})
	return out, nil
}

func (e *Exporter) exportItem(folder model.Folder, dir string, index int, item model.Item, out *Outcome) {
	name := folder.Name()

	class, err := item.Class()
	if err != nil {
		out.SkippedNonMail++
		e.itemFailed(out, &ItemError{Folder: name, Index: index, Unclassified: true, Err: fmt.Errorf("check item type: %w", err)})
		return
	}
	if class != e.opts.MailClass {
		out.SkippedNonMail++
		e.emit(stats.Event{Type: stats.EventTypeNonMail, Folder: name})
		return
	}

	timeToken := UnknownTime
	received, err := item.ReceivedTime()
	switch {
	case err == nil && !received.IsZero():
		timeToken = received.In(e.opts.Location).Format(TimeLayout)
	case err != nil && !errors.Is(err, model.ErrAbsent):
		e.itemFailed(out, &ItemError{Folder: name, Index: index, Subject: bestSubject(item), TimeToken: timeToken,
			Err: fmt.Errorf("read received time: %w", err)})
		return
	}

	subject, err := item.Subject()
	if errors.Is(err, model.ErrAbsent) {
		subject, err = NoSubject, nil
	}
	if err != nil {
		e.itemFailed(out, &ItemError{Folder: name, Index: index, Subject: unknownSubject, TimeToken: timeToken,
			Err: fmt.Errorf("read subject: %w", err)})
		return
	}

	path := filepath.Join(dir, e.FileName(timeToken, subject))

	_, err = os.Stat(path)
	switch {
	case err == nil:
		out.SkippedDuplicates++
		e.emit(stats.Event{Type: stats.EventTypeDuplicate, Folder: name, Path: path})
		if e.logger != nil {
			e.logger.Debug("skipping existing file", "folder", name, "path", path)
		}
		return
	case !errors.Is(err, fs.ErrNotExist):
		e.itemFailed(out, &ItemError{Folder: name, Index: index, Subject: subject, TimeToken: timeToken,
			Err: fmt.Errorf("check %s: %w", path, err)})
		return
	}

	if err := item.SaveAs(path, e.opts.Format); err != nil {
		e.itemFailed(out, &ItemError{Folder: name, Index: index, Subject: subject, TimeToken: timeToken,
			Err: fmt.Errorf("save: %w", err)})
		return
	}

	out.Processed++
	e.emit(stats.Event{Type: stats.EventTypeExported, Folder: name, Path: path})

	if e.recorder != nil {
		entry := manifest.Entry{
			Folder:     folder.FolderPath(),
			Path:       path,
			Subject:    subject,
			Received:   received,
			ExportedAt: time.Now(),
		}
		if err := e.recorder.Record(entry); err != nil {
			out.Errors = append(out.Errors, &ItemError{Folder: name, Index: index, Subject: subject, TimeToken: timeToken,
				Err: fmt.Errorf("record in manifest: %w", err)})
			if e.logger != nil {
				e.logger.Warn("manifest write failed", "path", path, "err", err)
			}
		}
	}
}

func (e *Exporter) itemFailed(out *Outcome, err *ItemError) {
	out.Errors = append(out.Errors, err)
	e.emit(stats.Event{Type: stats.EventTypeError, Folder: err.Folder, Err: err})
	if e.logger != nil {
		e.logger.Debug("item failed", "folder", err.Folder, "index", err.Index, "err", err.Err)
	}
}

func (e *Exporter) emit(evt stats.Event) {
	if e.observe != nil {
		e.observe(evt)
	}
}

// bestSubject reads the subject for an error message, falling back to a placeholder.
func bestSubject(item model.Item) string {
	subject, err := item.Subject()
	switch {
	case errors.Is(err, model.ErrAbsent):
		return NoSubject
	case err != nil:
		return unknownSubject
	}
	return subject
}
