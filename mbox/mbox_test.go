package mbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mailbox-export/model"
)

const (
	plainMessage = "From: alice@example.com\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: =?UTF-8?Q?Gr=C3=BC=C3=9Fe?=\r\n" +
		"Date: Fri, 17 May 2024 14:03:09 +0000\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Hello Bob\r\n"
	inviteMessage = "From: alice@example.com\r\n" +
		"Subject: Planning\r\n" +
		"Content-Type: text/calendar; method=REQUEST\r\n" +
		"\r\n" +
		"BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"
	expungedMessage = "From: spam@example.com\r\n" +
		"Subject: gone\r\n" +
		"X-Mozilla-Status: 0009\r\n" +
		"\r\n" +
		"deleted\r\n"
	bareMessage = "From: carol@example.com\r\n" +
		"\r\n" +
		"no subject, no date\r\n"
)

func writeMbox(t *testing.T, path string, messages ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	w := mboxlib.NewWriter(file)
	for _, m := range messages {
		mw, err := w.CreateMessage("sender@example.com", time.Date(2024, 5, 17, 14, 3, 9, 0, time.UTC))
		require.NoError(t, err)
		_, err = mw.Write([]byte(m))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

// profile builds
//
//	root/Local Folders/Inbox (+ .msf, .sbd/Work)
//	root/Local Folders/Trash
//	root/imap.example.com/INBOX
func profile(t *testing.T) string {
	root := t.TempDir()
	local := filepath.Join(root, "Local Folders")
	writeMbox(t, filepath.Join(local, "Inbox"), plainMessage, inviteMessage, expungedMessage, bareMessage)
	require.NoError(t, os.WriteFile(filepath.Join(local, "Inbox.msf"), []byte("index"), 0o644))
	writeMbox(t, filepath.Join(local, "Inbox.sbd", "Work"), plainMessage)
	require.NoError(t, os.WriteFile(filepath.Join(local, "Trash"), nil, 0o644))
	writeMbox(t, filepath.Join(root, "imap.example.com", "INBOX"), plainMessage)
	return root
}

func openStore(t *testing.T, root, name string) model.Store {
	t.Helper()
	s, err := Open(Options{Path: root}, nil)
	require.NoError(t, err)
	stores, err := s.Stores()
	require.NoError(t, err)
	for _, st := range stores {
		if st.Name() == name {
			return st
		}
	}
	t.Fatalf("store %q not found", name)
	return nil
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(Options{Path: " "}, nil)
	assert.Error(t, err)

	_, err = Open(Options{Path: filepath.Join(t.TempDir(), "missing")}, nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = Open(Options{Path: file}, nil)
	assert.Error(t, err)
}

func TestStores(t *testing.T) {
	s, err := Open(Options{Path: profile(t)}, nil)
	require.NoError(t, err)

	stores, err := s.Stores()
	require.NoError(t, err)

	var names []string
	for _, st := range stores {
		names = append(names, st.Name())
	}
	assert.Equal(t, []string{"Local Folders", "imap.example.com"}, names)
}

func TestStores_RootIsStore(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Archive")
	writeMbox(t, filepath.Join(root, "2019.mbox"), plainMessage)

	s, err := Open(Options{Path: root}, nil)
	require.NoError(t, err)
	stores, err := s.Stores()
	require.NoError(t, err)

	require.Len(t, stores, 1)
	assert.Equal(t, "Archive", stores[0].Name())
	roots, err := stores[0].Folders()
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "2019", roots[0].Name())
}

func TestFolders(t *testing.T) {
	st := openStore(t, profile(t), "Local Folders")

	roots, err := st.Folders()
	require.NoError(t, err)
	require.Len(t, roots, 2)

	inbox := roots[0]
	assert.Equal(t, "Inbox", inbox.Name())
	assert.Equal(t, `\\Local Folders\Inbox`, inbox.FolderPath())
	assert.Equal(t, "Trash", roots[1].Name())

	children, err := inbox.Folders()
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "Work", children[0].Name())
	assert.Equal(t, `\\Local Folders\Inbox\Work`, children[0].FolderPath())
}

func TestItems(t *testing.T) {
	st := openStore(t, profile(t), "Local Folders")
	roots, err := st.Folders()
	require.NoError(t, err)

	items, err := roots[0].Items()
	require.NoError(t, err)
	require.Len(t, items, 3, "expunged message must be hidden")

	class, err := items[0].Class()
	require.NoError(t, err)
	assert.Equal(t, model.ClassMail, class)
	subject, err := items[0].Subject()
	require.NoError(t, err)
	assert.Equal(t, "Grüße", subject)
	received, err := items[0].ReceivedTime()
	require.NoError(t, err)
	assert.True(t, received.Equal(time.Date(2024, 5, 17, 14, 3, 9, 0, time.UTC)))

	class, err = items[1].Class()
	require.NoError(t, err)
	assert.Equal(t, model.ClassMeetingRequest, class)

	_, err = items[2].Subject()
	assert.ErrorIs(t, err, model.ErrAbsent)
	_, err = items[2].ReceivedTime()
	assert.ErrorIs(t, err, model.ErrAbsent)

	trash, err := roots[1].Items()
	require.NoError(t, err)
	assert.Empty(t, trash)
}

func TestSaveAs(t *testing.T) {
	st := openStore(t, profile(t), "imap.example.com")
	roots, err := st.Folders()
	require.NoError(t, err)
	items, err := roots[0].Items()
	require.NoError(t, err)
	require.Len(t, items, 1)

	path := filepath.Join(t.TempDir(), "out.msg")
	require.NoError(t, items[0].SaveAs(path, model.SaveFormatRFC822))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hello Bob")

	assert.Error(t, items[0].SaveAs(path, model.SaveFormatRFC822), "existing file must not be overwritten")
	assert.ErrorIs(t, items[0].SaveAs(path+"2", model.SaveFormat("msg")), model.ErrUnsupportedFormat)
}

func TestItem_BrokenHeader(t *testing.T) {
	it := parseItem(strings.NewReader("not a header line\r\n"))

	_, err := it.Class()
	assert.Error(t, err)
	assert.False(t, it.expunged())
}

func TestSaveAs_ReadsMessageFromFile(t *testing.T) {
	st := openStore(t, profile(t), "Local Folders")
	roots, err := st.Folders()
	require.NoError(t, err)
	items, err := roots[0].Items()
	require.NoError(t, err)
	require.Len(t, items, 3)

	for _, it := range items {
		assert.Nil(t, it.(*item).cursor.file, "no file kept open after listing")
	}

	dir := t.TempDir()
	read := func(i int) string {
		path := filepath.Join(dir, fmt.Sprintf("%d.msg", i))
		require.NoError(t, items[i].SaveAs(path, model.SaveFormatRFC822))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return string(data)
	}

	// out of order: skips the expunged message, then rewinds
	bare := read(2)
	assert.Contains(t, bare, "no subject, no date")
	assert.NotContains(t, bare, "deleted")

	plain := read(0)
	assert.Contains(t, plain, "Hello Bob")
	assert.NotContains(t, plain, "BEGIN:VCALENDAR")

	assert.Contains(t, read(1), "BEGIN:VCALENDAR")
}

func TestSaveAs_FileShrunk(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Inbox")
	writeMbox(t, path, plainMessage, plainMessage)

	s, err := Open(Options{Path: root}, nil)
	require.NoError(t, err)
	stores, err := s.Stores()
	require.NoError(t, err)
	roots, err := stores[0].Folders()
	require.NoError(t, err)
	items, err := roots[0].Items()
	require.NoError(t, err)
	require.Len(t, items, 2)

	writeMbox(t, path, plainMessage)
	err = items[1].SaveAs(filepath.Join(t.TempDir(), "x.msg"), model.SaveFormatRFC822)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
