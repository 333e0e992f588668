// Package mbox reads a local folder tree of mbox files laid out the way
// Thunderbird stores them: a folder X is the mbox file X and its subfolders
// live in the directory X.sbd.
package mbox

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/dhcgn/mailbox-export/model"
)

const (
	subfolderSuffix = ".sbd"
	mboxSuffix      = ".mbox"
	// X-Mozilla-Status flag for messages deleted but not yet compacted away.
	mozillaExpunged = 0x0008
)

var ignoredExtensions = map[string]bool{
	".msf":    true,
	".dat":    true,
	".json":   true,
	".db":     true,
	".sqlite": true,
	".html":   true,
	".js":     true,
}

type Options struct {
	Path string
}

// Session exposes the mail stores below a local directory.
type Session struct {
	root   string
	logger *slog.Logger
}

func Open(opts Options, logger *slog.Logger) (*Session, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mbox root %s is not a directory", path)
	}
	return &Session{root: filepath.Clean(path), logger: logger}, nil
}

// Stores lists the root itself when it directly holds folders, followed by
// every plain subdirectory (one per account).
func (s *Session) Stores() ([]model.Store, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read mbox root: %w", err)
	}

	var (
		stores  []model.Store
		hasOwn  bool
		subdirs []model.Store
	)
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasPrefix(name, "."):
		case e.IsDir() && strings.HasSuffix(name, subfolderSuffix):
			hasOwn = true
		case e.IsDir():
			subdirs = append(subdirs, &store{session: s, name: name, dir: filepath.Join(s.root, name)})
		case isMailboxFile(name):
			hasOwn = true
		}
	}
	if hasOwn {
		stores = append(stores, &store{session: s, name: filepath.Base(s.root), dir: s.root})
	}
	return append(stores, subdirs...), nil
}

func (s *Session) Close() error {
	return nil
}

type store struct {
	session *Session
	name    string
	dir     string
}

func (st *store) Name() string { return st.name }

func (st *store) Folders() ([]model.Folder, error) {
	return listFolders(st.session, st.dir, `\\`+st.name)
}

func isMailboxFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || ext == mboxSuffix {
		return true
	}
	return !ignoredExtensions[ext] && !strings.ContainsAny(ext, " ")
}

// listFolders returns the folders stored in dir in directory order, merging a
// mailbox file with its .sbd directory.
func listFolders(s *Session, dir, parentPath string) ([]model.Folder, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder directory: %w", err)
	}

	var ordered []*folder
	byName := make(map[string]*folder)
	get := func(name string) *folder {
		if f, ok := byName[name]; ok {
			return f
		}
		f := &folder{session: s, name: name, path: parentPath + `\` + name}
		byName[name] = f
		ordered = append(ordered, f)
		return f
	}

	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasPrefix(name, "."):
		case e.IsDir() && strings.HasSuffix(name, subfolderSuffix):
			get(strings.TrimSuffix(name, subfolderSuffix)).sbdPath = filepath.Join(dir, name)
		case e.IsDir():
		case isMailboxFile(name):
			trimmed := name
			if strings.EqualFold(filepath.Ext(name), mboxSuffix) {
				trimmed = name[:len(name)-len(mboxSuffix)]
			}
			get(trimmed).mboxPath = filepath.Join(dir, name)
		}
	}

	out := make([]model.Folder, 0, len(ordered))
	for _, f := range ordered {
		out = append(out, f)
	}
	return out, nil
}

type folder struct {
	session  *Session
	name     string
	path     string
	mboxPath string
	sbdPath  string
}

func (f *folder) Name() string       { return f.name }
func (f *folder) FolderPath() string { return f.path }

func (f *folder) Folders() ([]model.Folder, error) {
	if f.sbdPath == "" {
		return nil, nil
	}
	return listFolders(f.session, f.sbdPath, f.path)
}

// Items parses the header of every message. Bodies are not kept; SaveAs
// reads its message from the file again.
func (f *folder) Items() ([]model.Item, error) {
	if f.mboxPath == "" {
		return nil, nil
	}

	file, err := os.Open(f.mboxPath)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	cursor := &messageCursor{path: f.mboxPath}
	var items []model.Item
	reader := mboxlib.NewReader(file)
	for idx := 0; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return items, nil
			}
			return nil, fmt.Errorf("message %d: %w", idx, err)
		}

		it := parseItem(msgReader)
		if _, err := io.Copy(io.Discard, msgReader); err != nil {
			return nil, fmt.Errorf("message %d read: %w", idx, err)
		}
		if it.expunged() {
			if f.session.logger != nil {
				f.session.logger.Debug("skipping expunged message", "folder", f.path, "index", idx)
			}
			continue
		}
		it.cursor, it.index = cursor, idx
		items = append(items, it)
	}
}

// messageCursor hands out the messages of one mbox file by position. Reading
// them in ascending order scans the file once; going back reopens it.
type messageCursor struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	reader *mboxlib.Reader
	next   int
}

// copyTo streams message index to w.
func (c *messageCursor) copyTo(index int, w func(io.Reader) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil || index < c.next {
		c.closeLocked()
		file, err := os.Open(c.path)
		if err != nil {
			return fmt.Errorf("open mbox: %w", err)
		}
		c.file, c.reader, c.next = file, mboxlib.NewReader(file), 0
	}

	for {
		msg, err := c.reader.NextMessage()
		if err != nil {
			c.closeLocked()
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("message %d: %w", index, io.ErrUnexpectedEOF)
			}
			return fmt.Errorf("message %d: %w", index, err)
		}
		current := c.next
		c.next++
		if current == index {
			err := w(msg)
			if _, drainErr := io.Copy(io.Discard, msg); err == nil && drainErr != nil {
				err = fmt.Errorf("message %d read: %w", index, drainErr)
			}
			return err
		}
	}
}

func (c *messageCursor) closeLocked() {
	if c.file != nil {
		_ = c.file.Close()
	}
	c.file, c.reader, c.next = nil, nil, 0
}

type item struct {
	cursor    *messageCursor
	index     int
	header    mail.Header
	headerErr error
}

func parseItem(r io.Reader) *item {
	h, err := textproto.ReadHeader(bufio.NewReader(r))
	if err != nil {
		return &item{headerErr: fmt.Errorf("parse header: %w", err)}
	}
	return &item{header: mail.Header{Header: message.Header{Header: h}}}
}

func (it *item) expunged() bool {
	if it.headerErr != nil {
		return false
	}
	status := strings.TrimSpace(it.header.Get("X-Mozilla-Status"))
	if status == "" {
		return false
	}
	flags, err := strconv.ParseUint(status, 16, 32)
	return err == nil && flags&mozillaExpunged != 0
}

func (it *item) Class() (model.ItemClass, error) {
	if it.headerErr != nil {
		return "", it.headerErr
	}
	value := it.header.Get("Content-Type")
	if value == "" {
		return model.ClassMail, nil
	}
	mediaType, _, err := it.header.ContentType()
	if err != nil {
		mediaType, _, _ = strings.Cut(value, ";")
	}
	return model.ClassifyMediaType(mediaType), nil
}

func (it *item) Subject() (string, error) {
	if it.headerErr != nil {
		return "", it.headerErr
	}
	if !it.header.Has("Subject") {
		return "", model.ErrAbsent
	}
	subject, err := it.header.Subject()
	if err != nil {
		// unknown charset: keep the encoded form
		return it.header.Get("Subject"), nil
	}
	return subject, nil
}

func (it *item) ReceivedTime() (time.Time, error) {
	if it.headerErr != nil {
		return time.Time{}, it.headerErr
	}
	if !it.header.Has("Date") {
		return time.Time{}, model.ErrAbsent
	}
	t, err := it.header.Date()
	if err != nil || t.IsZero() {
		return time.Time{}, model.ErrAbsent
	}
	return t, nil
}

func (it *item) SaveAs(path string, format model.SaveFormat) error {
	if format != model.SaveFormatRFC822 {
		return fmt.Errorf("%w: %s", model.ErrUnsupportedFormat, format)
	}
	if it.cursor == nil {
		return fmt.Errorf("message has no source file")
	}
	return it.cursor.copyTo(it.index, func(r io.Reader) error {
		return model.CopyExclusive(path, r)
	})
}
