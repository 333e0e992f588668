// Package folders flattens a folder tree into display entries.
package folders

import (
	"log/slog"

	"github.com/dhcgn/mailbox-export/model"
)

// Enumerate walks roots depth-first in pre-order. Each folder is listed before
// its children, children in the order the store returns them. A folder whose
// children cannot be listed is kept and its subtree skipped.
func Enumerate(roots []model.Folder, logger *slog.Logger) []model.DisplayEntry {
	var entries []model.DisplayEntry
	for _, root := range roots {
		entries = walk(root, "", entries, logger)
	}
	return entries
}

func walk(folder model.Folder, prefix string, entries []model.DisplayEntry, logger *slog.Logger) []model.DisplayEntry {
	name := folder.Name()
	if prefix != "" {
		name = prefix + "/" + name
	}
	entries = append(entries, model.DisplayEntry{DisplayName: name, Folder: folder})

	children, err := folder.Folders()
	if err != nil {
		if logger != nil {
			logger.Warn("cannot list subfolders", "folder", name, "err", err)
		}
		return entries
	}
	for _, child := range children {
		entries = walk(child, name, entries, logger)
	}
	return entries
}

// DisplayName returns the display name recorded for folder, or its plain name
// when it is not in entries.
func DisplayName(entries []model.DisplayEntry, folder model.Folder) string {
	for _, e := range entries {
		if e.Folder == folder {
			return e.DisplayName
		}
	}
	return folder.Name()
}
