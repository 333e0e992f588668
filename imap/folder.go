package imap

import (
	"fmt"
	"strings"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"

	"github.com/dhcgn/mailbox-export/model"
)

type store struct {
	session *Session
	name    string
}

func (st *store) Name() string { return st.name }

func (st *store) Folders() ([]model.Folder, error) {
	list, err := st.session.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}
	roots := buildTree(st.session, `\\`+st.name, list)

	out := make([]model.Folder, 0, len(roots))
	for _, r := range roots {
		out = append(out, r)
	}
	return out, nil
}

type folder struct {
	session  *Session
	name     string
	mailbox  string
	path     string
	noSelect bool
	children []*folder
}

// buildTree arranges LIST responses into a tree using each mailbox's hierarchy
// delimiter, keeping server order. Parents the server did not list are added
// as non-selectable placeholders.
func buildTree(s *Session, storePath string, list []*imapv2.ListData) []*folder {
	var roots []*folder
	byName := make(map[string]*folder, len(list))

	var ensure func(mailbox string, delim rune) *folder
	ensure = func(mailbox string, delim rune) *folder {
		if f, ok := byName[mailbox]; ok {
			return f
		}

		parentName, leaf := "", mailbox
		if delim != 0 {
			if i := strings.LastIndex(mailbox, string(delim)); i >= 0 {
				parentName, leaf = mailbox[:i], mailbox[i+len(string(delim)):]
			}
		}

		f := &folder{session: s, name: leaf, mailbox: mailbox, noSelect: true}
		byName[mailbox] = f
		if parentName == "" {
			f.path = storePath + `\` + leaf
			roots = append(roots, f)
			return f
		}
		parent := ensure(parentName, delim)
		f.path = parent.path + `\` + leaf
		parent.children = append(parent.children, f)
		return f
	}

	for _, data := range list {
		if data == nil || data.Mailbox == "" {
			continue
		}
		f := ensure(data.Mailbox, data.Delim)
		f.noSelect = hasAttr(data.Attrs, imapv2.MailboxAttrNoSelect) || hasAttr(data.Attrs, imapv2.MailboxAttrNonExistent)
	}
	return roots
}

func hasAttr(attrs []imapv2.MailboxAttr, want imapv2.MailboxAttr) bool {
	for _, a := range attrs {
		if strings.EqualFold(string(a), string(want)) {
			return true
		}
	}
	return false
}

func (f *folder) Name() string       { return f.name }
func (f *folder) FolderPath() string { return f.path }

func (f *folder) Folders() ([]model.Folder, error) {
	out := make([]model.Folder, 0, len(f.children))
	for _, c := range f.children {
		out = append(out, c)
	}
	return out, nil
}

func (f *folder) Items() ([]model.Item, error) {
	if f.noSelect {
		return nil, nil
	}

	data, err := f.session.selectMailbox(f.mailbox)
	if err != nil {
		return nil, err
	}
	if data.NumMessages == 0 {
		return nil, nil
	}

	var all imapv2.SeqSet
	all.AddRange(1, 0)
	bufs, err := f.session.client.Fetch(all, &imapv2.FetchOptions{
		UID:           true,
		Envelope:      true,
		InternalDate:  true,
		BodyStructure: &imapv2.FetchItemBodyStructure{},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", f.mailbox, err)
	}

	items := make([]model.Item, 0, len(bufs))
	for _, buf := range bufs {
		it := &item{session: f.session, mailbox: f.mailbox, uid: buf.UID, received: buf.InternalDate}
		if buf.Envelope != nil {
			it.subject = buf.Envelope.Subject
			if it.received.IsZero() {
				it.received = buf.Envelope.Date
			}
		}
		if buf.BodyStructure != nil {
			it.mediaType = buf.BodyStructure.MediaType()
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *Session) selectMailbox(mailbox string) (*imapv2.SelectData, error) {
	data, err := s.client.Select(mailbox, &imapv2.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		s.selected = ""
		return nil, fmt.Errorf("select %s: %w", mailbox, err)
	}
	s.selected = mailbox
	return data, nil
}

type item struct {
	session   *Session
	mailbox   string
	uid       imapv2.UID
	subject   string
	received  time.Time
	mediaType string
}

func (it *item) Class() (model.ItemClass, error) {
	return model.ClassifyMediaType(it.mediaType), nil
}

func (it *item) Subject() (string, error) {
	if it.subject == "" {
		return "", model.ErrAbsent
	}
	return it.subject, nil
}

func (it *item) ReceivedTime() (time.Time, error) {
	if it.received.IsZero() {
		return time.Time{}, model.ErrAbsent
	}
	return it.received, nil
}

func (it *item) SaveAs(path string, format model.SaveFormat) error {
	if format != model.SaveFormatRFC822 {
		return fmt.Errorf("%w: %s", model.ErrUnsupportedFormat, format)
	}

	raw, err := it.session.fetchRaw(it.mailbox, it.uid)
	if err != nil {
		return err
	}
	return model.WriteExclusive(path, raw)
}

func (s *Session) fetchRaw(mailbox string, uid imapv2.UID) ([]byte, error) {
	if s.selected != mailbox {
		if _, err := s.selectMailbox(mailbox); err != nil {
			return nil, err
		}
	}

	section := &imapv2.FetchItemBodySection{Peek: true}
	bufs, err := s.client.Fetch(imapv2.UIDSetNum(uid), &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch uid %d: %w", uid, err)
	}
	if len(bufs) == 0 {
		return nil, fmt.Errorf("message uid %d not found in %s", uid, mailbox)
	}

	raw := bufs[0].FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("message uid %d: empty body", uid)
	}
	return raw, nil
}
