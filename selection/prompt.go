package selection

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/dhcgn/mailbox-export/model"
)

// Prompter asks the user for the choices that were not given on the command line.
type Prompter struct {
	// Accessible switches huh to plain line-based prompts.
	Accessible bool
}

func (p Prompter) run(fields ...huh.Field) error {
	err := huh.NewForm(huh.NewGroup(fields...)).WithAccessible(p.Accessible).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return fmt.Errorf("cancelled: %w", err)
	}
	return err
}

// OutputDir asks for the base export directory.
func (p Prompter) OutputDir(initial string) (string, error) {
	dir := initial
	err := p.run(
		huh.NewInput().
			Title("Export directory").
			Description("Full path for email exports, e.g. E:\\EmailBackups").
			Value(&dir).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("path cannot be empty")
				}
				return nil
			}),
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(dir), nil
}

// Store asks which mailbox to export from.
func (p Prompter) Store(stores []model.Store) (model.Store, error) {
	if len(stores) == 0 {
		return nil, ErrNoStores
	}
	if len(stores) == 1 {
		return stores[0], nil
	}

	options := make([]huh.Option[int], 0, len(stores))
	for i, s := range stores {
		options = append(options, huh.NewOption(fmt.Sprintf("%d: %s", i+1, s.Name()), i))
	}

	var idx int
	err := p.run(
		huh.NewSelect[int]().
			Title("Select the mailbox to export from").
			Options(options...).
			Value(&idx),
	)
	if err != nil {
		return nil, err
	}
	return stores[idx], nil
}

// Folders asks which of the enumerated folders to export.
func (p Prompter) Folders(entries []model.DisplayEntry) (Selection, error) {
	all := false
	err := p.run(
		huh.NewConfirm().
			Title(fmt.Sprintf("Export all %d folders?", len(entries))).
			Affirmative("All folders").
			Negative("Choose folders").
			Value(&all),
	)
	if err != nil {
		return Selection{}, err
	}
	if all {
		return Selection{All: true}, nil
	}

	options := make([]huh.Option[int], 0, len(entries))
	for i, e := range entries {
		options = append(options, huh.NewOption(fmt.Sprintf("%d: %s", i+1, e.DisplayName), i))
	}

	var indices []int
	err = p.run(
		huh.NewMultiSelect[int]().
			Title("Select the folders to export").
			Options(options...).
			Value(&indices).
			Validate(func(v []int) error {
				if len(v) == 0 {
					return ErrEmpty
				}
				return nil
			}),
	)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Indices: indices}, nil
}

// Confirm shows the chosen folders and asks for confirmation.
func (p Prompter) Confirm(chosen []model.DisplayEntry) (bool, error) {
	names := make([]string, 0, len(chosen))
	for _, e := range chosen {
		names = append(names, "- "+e.DisplayName)
	}

	ok := true
	err := p.run(
		huh.NewConfirm().
			Title("Confirm selection?").
			Description(strings.Join(names, "\n")).
			Value(&ok),
	)
	return ok, err
}

// Interactive reports whether stdin is a terminal a form can run on.
func Interactive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
