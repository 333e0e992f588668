// Package mailtest provides in-memory implementations of the model interfaces
// for use in tests.
package mailtest

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dhcgn/mailbox-export/model"
)

// Item is a configurable model.Item. A zero Received and NoSubject report the
// fields as absent.
type Item struct {
	ItemClass   model.ItemClass
	ClassErr    error
	Subj        string
	NoSubject   bool
	SubjectErr  error
	Received    time.Time
	ReceivedErr error
	SaveErr     error
	Content     []byte

	Saved []string
}

// Mail returns a mail item with the given subject and received time.
func Mail(subject string, received time.Time) *Item {
	return &Item{ItemClass: model.ClassMail, Subj: subject, Received: received}
}

// Other returns a non-mail item of the given class.
func Other(class model.ItemClass) *Item {
	return &Item{ItemClass: class, Subj: "not mail"}
}

func (i *Item) Class() (model.ItemClass, error) {
	if i.ClassErr != nil {
		return "", i.ClassErr
	}
	return i.ItemClass, nil
}

func (i *Item) Subject() (string, error) {
	if i.SubjectErr != nil {
		return "", i.SubjectErr
	}
	if i.NoSubject {
		return "", model.ErrAbsent
	}
	return i.Subj, nil
}

func (i *Item) ReceivedTime() (time.Time, error) {
	if i.ReceivedErr != nil {
		return time.Time{}, i.ReceivedErr
	}
	if i.Received.IsZero() {
		return time.Time{}, model.ErrAbsent
	}
	return i.Received, nil
}

func (i *Item) SaveAs(path string, format model.SaveFormat) error {
	if i.SaveErr != nil {
		return i.SaveErr
	}
	if format != model.SaveFormatRFC822 {
		return fmt.Errorf("%w: %s", model.ErrUnsupportedFormat, format)
	}
	content := i.Content
	if content == nil {
		content = []byte("Subject: " + i.Subj + "\r\n\r\n")
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return err
	}
	i.Saved = append(i.Saved, path)
	return nil
}

// Folder is a configurable model.Folder.
type Folder struct {
	FolderName  string
	Path        string
	Children    []*Folder
	ChildrenErr error
	Messages    []*Item
	ItemsErr    error
}

// NewFolder builds a folder whose path is parentPath + `\` + name.
func NewFolder(parentPath, name string, children ...*Folder) *Folder {
	f := &Folder{FolderName: name, Path: parentPath + `\` + name}
	for _, c := range children {
		f.Add(c)
	}
	return f
}

// Add attaches child and rewrites its path (and its descendants') below f.
func (f *Folder) Add(child *Folder) *Folder {
	child.reparent(f.Path)
	f.Children = append(f.Children, child)
	return child
}

func (f *Folder) reparent(parentPath string) {
	f.Path = parentPath + `\` + f.FolderName
	for _, c := range f.Children {
		c.reparent(f.Path)
	}
}

func (f *Folder) Name() string       { return f.FolderName }
func (f *Folder) FolderPath() string { return f.Path }

func (f *Folder) Folders() ([]model.Folder, error) {
	if f.ChildrenErr != nil {
		return nil, f.ChildrenErr
	}
	out := make([]model.Folder, 0, len(f.Children))
	for _, c := range f.Children {
		out = append(out, c)
	}
	return out, nil
}

func (f *Folder) Items() ([]model.Item, error) {
	if f.ItemsErr != nil {
		return nil, f.ItemsErr
	}
	out := make([]model.Item, 0, len(f.Messages))
	for _, m := range f.Messages {
		out = append(out, m)
	}
	return out, nil
}

// Store is a model.Store over top-level fake folders.
type Store struct {
	StoreName string
	Roots     []*Folder
	Err       error
}

// NewStore returns a store whose roots live under \\name.
func NewStore(name string, roots ...*Folder) *Store {
	s := &Store{StoreName: name}
	for _, r := range roots {
		r.reparent(s.Path())
		s.Roots = append(s.Roots, r)
	}
	return s
}

// Path is the store-root folder path, \\name.
func (s *Store) Path() string { return `\\` + strings.TrimPrefix(s.StoreName, `\`) }

func (s *Store) Name() string { return s.StoreName }

func (s *Store) Folders() ([]model.Folder, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]model.Folder, 0, len(s.Roots))
	for _, r := range s.Roots {
		out = append(out, r)
	}
	return out, nil
}

// Session is a model.Session over fake stores.
type Session struct {
	StoreList []*Store
	Closed    bool
}

func (s *Session) Stores() ([]model.Store, error) {
	out := make([]model.Store, 0, len(s.StoreList))
	for _, st := range s.StoreList {
		out = append(out, st)
	}
	return out, nil
}

func (s *Session) Close() error {
	s.Closed = true
	return nil
}
