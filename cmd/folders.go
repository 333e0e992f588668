package cmd

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mailbox-export/config"
	"github.com/dhcgn/mailbox-export/filter"
	"github.com/dhcgn/mailbox-export/folders"
	"github.com/dhcgn/mailbox-export/manifest"
	"github.com/dhcgn/mailbox-export/model"
	"github.com/dhcgn/mailbox-export/runner"
	"github.com/dhcgn/mailbox-export/sanitize"
	"github.com/dhcgn/mailbox-export/selection"
)

// Setup loads the configuration and logger shared by all commands. The
// returned cleanup func must be called when the command is done.
type Setup func(cmd *cobra.Command) (config.Config, *slog.Logger, func() error, error)

type folderRow struct {
	Number   int
	Store    string
	Folder   string
	Path     string
	Items    int
	Mail     int
	Exported int
	Err      error
}

// NewFoldersCmd lists the folders of one or all mailboxes in export order.
func NewFoldersCmd(setup Setup) *cobra.Command {
	var (
		count      bool
		reportPath string
	)

	c := &cobra.Command{
		Use:   "folders",
		Short: "List the folders of a mailbox in the order they would be exported",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(c)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			session, err := runner.OpenSession(c.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer session.Close()

			stores, err := session.Stores()
			if err != nil {
				return fmt.Errorf("list mailboxes: %w", err)
			}
			if cfg.Store != "" {
				store, err := selection.ResolveStore(stores, cfg.Store)
				if err != nil {
					return err
				}
				stores = []model.Store{store}
			}

			f, err := filter.New(filter.Options{Include: cfg.IncludeFolder, Exclude: cfg.ExcludeFolder})
			if err != nil {
				return fmt.Errorf("create filter: %w", err)
			}

			withCounts := count || reportPath != ""
			var rows []folderRow
			for _, store := range stores {
				roots, err := store.Folders()
				if err != nil {
					return fmt.Errorf("list folders of %s: %w", store.Name(), err)
				}
				entries := f.Apply(folders.Enumerate(roots, logger))

				var exported map[string]int
				if withCounts && cfg.OutputDir != "" {
					exported, err = exportedCounts(filepath.Join(cfg.OutputDir, sanitize.Filename(store.Name())))
					if err != nil {
						return err
					}
				}
				rows = append(rows, collectRows(store.Name(), entries, withCounts, exported)...)
			}

			if err := renderTable(rows, withCounts); err != nil {
				return err
			}

			if reportPath != "" {
				if err := writeReport(reportPath, rows); err != nil {
					return fmt.Errorf("error saving CSV report: %w", err)
				}
				pterm.Info.Printf("Report saved to: %s\n", reportPath)
			}
			return nil
		},
	}

	c.Flags().BoolVar(&count, "count", false, "Count the items and mail items of every folder")
	c.Flags().StringVar(&reportPath, "report", "", "Write the folder list with counts to a CSV file")
	c.Flags().StringP("output", "o", "", "Base output directory of a previous export, adds exported counts from its manifest")
	return c
}

// collectRows numbers the entries of one store the way the export prompt
// does. Item counts are only read when withCounts is set.
func collectRows(store string, entries []model.DisplayEntry, withCounts bool, exported map[string]int) []folderRow {
	rows := make([]folderRow, 0, len(entries))
	for i, entry := range entries {
		row := folderRow{
			Number:   i + 1,
			Store:    store,
			Folder:   entry.DisplayName,
			Path:     entry.Folder.FolderPath(),
			Exported: exported[entry.Folder.FolderPath()],
		}
		if withCounts {
			row.Items, row.Mail, row.Err = countItems(entry.Folder)
		}
		rows = append(rows, row)
	}
	return rows
}

func countItems(folder model.Folder) (int, int, error) {
	items, err := folder.Items()
	if err != nil {
		return 0, 0, err
	}
	mail := 0
	for _, item := range items {
		if class, err := item.Class(); err == nil && class == model.ClassMail {
			mail++
		}
	}
	return len(items), mail, nil
}

// exportedCounts reads the manifest below base and counts the records per
// folder path. A missing manifest yields no counts.
func exportedCounts(base string) (map[string]int, error) {
	entries, err := manifest.Read(base)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Folder]++
	}
	return counts, nil
}

func renderTable(rows []folderRow, withCounts bool) error {
	if len(rows) == 0 {
		pterm.Warning.Println("No folders found.")
		return nil
	}

	header := []string{"#", "Mailbox", "Folder"}
	if withCounts {
		header = append(header, "Items", "Mail", "Exported")
	}
	data := pterm.TableData{header}
	for _, r := range rows {
		line := []string{strconv.Itoa(r.Number), r.Store, r.Folder}
		if withCounts {
			if r.Err != nil {
				line = append(line, "error", "", strconv.Itoa(r.Exported))
			} else {
				line = append(line, strconv.Itoa(r.Items), strconv.Itoa(r.Mail), strconv.Itoa(r.Exported))
			}
		}
		data = append(data, line)
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func writeReport(path string, rows []folderRow) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Number", "Mailbox", "Folder", "FolderPath", "Items", "Mail", "Exported", "Error"}); err != nil {
		return err
	}
	for _, r := range rows {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		record := []string{
			strconv.Itoa(r.Number),
			r.Store,
			r.Folder,
			r.Path,
			strconv.Itoa(r.Items),
			strconv.Itoa(r.Mail),
			strconv.Itoa(r.Exported),
			errText,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}
