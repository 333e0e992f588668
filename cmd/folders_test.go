package cmd

import (
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mailbox-export/config"
	"github.com/dhcgn/mailbox-export/folders"
	"github.com/dhcgn/mailbox-export/mailtest"
	"github.com/dhcgn/mailbox-export/manifest"
	"github.com/dhcgn/mailbox-export/model"
	"github.com/dhcgn/mailbox-export/sanitize"
)

const inboxMbox = "From alice@example.com Fri May 17 14:03:09 2024\n" +
	"From: alice@example.com\n" +
	"Subject: Hello\n" +
	"Date: Fri, 17 May 2024 14:03:09 +0000\n" +
	"\n" +
	"Hi\n" +
	"\n"

func testSetup(c *cobra.Command) (config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.LoadConfig(c)
	return cfg, nil, func() error { return nil }, err
}

func newRoot(sub ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{Use: "mailbox-export", SilenceUsage: true, SilenceErrors: true}
	config.RegisterFlags(root)
	root.AddCommand(sub...)
	return root
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return records
}

func sampleEntries(t *testing.T) []model.DisplayEntry {
	t.Helper()
	inbox := mailtest.NewFolder("", "Inbox")
	inbox.Messages = []*mailtest.Item{
		mailtest.Mail("a", time.Now()),
		mailtest.Other(model.ClassTask),
	}
	locked := inbox.Add(mailtest.NewFolder("", "Locked"))
	locked.ItemsErr = errors.New("no access")
	st := mailtest.NewStore("account", inbox)
	roots, err := st.Folders()
	require.NoError(t, err)
	return folders.Enumerate(roots, nil)
}

func TestCollectRows(t *testing.T) {
	entries := sampleEntries(t)

	rows := collectRows("account", entries, true, map[string]int{`\\account\Inbox`: 4})
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].Number)
	assert.Equal(t, "Inbox", rows[0].Folder)
	assert.Equal(t, 2, rows[0].Items)
	assert.Equal(t, 1, rows[0].Mail)
	assert.Equal(t, 4, rows[0].Exported)

	assert.Equal(t, 2, rows[1].Number)
	assert.Equal(t, "Inbox/Locked", rows[1].Folder)
	assert.EqualError(t, rows[1].Err, "no access")
}

func TestCollectRows_WithoutCounts(t *testing.T) {
	rows := collectRows("account", sampleEntries(t), false, nil)
	require.Len(t, rows, 2)
	assert.Zero(t, rows[0].Items)
	assert.NoError(t, rows[1].Err)
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "folders.csv")
	rows := collectRows("account", sampleEntries(t), true, nil)

	require.NoError(t, writeReport(path, rows))

	records := readCSV(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Number", "Mailbox", "Folder", "FolderPath", "Items", "Mail", "Exported", "Error"}, records[0])
	assert.Equal(t, []string{"1", "account", "Inbox", `\\account\Inbox`, "2", "1", "0", ""}, records[1])
	assert.Equal(t, "no access", records[2][7])
}

func TestExportedCounts(t *testing.T) {
	dir := t.TempDir()

	counts, err := exportedCounts(dir)
	require.NoError(t, err)
	assert.Empty(t, counts)

	rec, err := manifest.NewFileRecorder(dir)
	require.NoError(t, err)
	require.NoError(t, rec.Record(manifest.Entry{Folder: `\\a\Inbox`, Path: "x"}))
	require.NoError(t, rec.Record(manifest.Entry{Folder: `\\a\Inbox`, Path: "y"}))
	require.NoError(t, rec.Record(manifest.Entry{Folder: `\\a\Sent`, Path: "z"}))
	require.NoError(t, rec.Close())

	counts, err = exportedCounts(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{`\\a\Inbox`: 2, `\\a\Sent`: 1}, counts)
}

func TestFoldersCmd_Report(t *testing.T) {
	mailDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(mailDir, "Inbox"), []byte(inboxMbox), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(mailDir, "Inbox.sbd"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(mailDir, "Inbox.sbd", "Work"), nil, 0o644))

	storeName := filepath.Base(mailDir)
	outDir := t.TempDir()
	rec, err := manifest.NewFileRecorder(filepath.Join(outDir, sanitize.Filename(storeName)))
	require.NoError(t, err)
	require.NoError(t, rec.Record(manifest.Entry{Folder: `\\` + storeName + `\Inbox`, Path: "x"}))
	require.NoError(t, rec.Close())

	report := filepath.Join(t.TempDir(), "folders.csv")
	root := newRoot(NewFoldersCmd(testSetup))
	root.SetArgs([]string{"folders", "--source", "mbox", "--mbox", mailDir, "--report", report, "-o", outDir})
	require.NoError(t, root.Execute())

	records := readCSV(t, report)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"1", storeName, "Inbox", `\\` + storeName + `\Inbox`, "1", "1", "1", ""}, records[1])
	assert.Equal(t, []string{"2", storeName, "Inbox/Work", `\\` + storeName + `\Inbox\Work`, "0", "0", "0", ""}, records[2])
}

func TestFoldersCmd_UnknownStore(t *testing.T) {
	mailDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(mailDir, "Inbox"), nil, 0o644))

	root := newRoot(NewFoldersCmd(testSetup))
	root.SetArgs([]string{"folders", "--source", "mbox", "--mbox", mailDir, "--store", "Elsewhere"})
	assert.ErrorContains(t, root.Execute(), `mailbox "Elsewhere" not found`)
}
