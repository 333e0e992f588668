package folders

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mailbox-export/mailtest"
	"github.com/dhcgn/mailbox-export/model"
)

func names(entries []model.DisplayEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.DisplayName)
	}
	return out
}

func TestEnumerate_PreOrder(t *testing.T) {
	b := mailtest.NewFolder("", "B")
	a := mailtest.NewFolder("", "A", b)
	c := mailtest.NewFolder("", "C")
	root := mailtest.NewFolder("", "Root", a, c)

	entries := Enumerate([]model.Folder{root}, nil)

	require.Len(t, entries, 4)
	assert.Equal(t, []string{"Root", "Root/A", "Root/A/B", "Root/C"}, names(entries))
	assert.Same(t, root, entries[0].Folder)
	assert.Same(t, a, entries[1].Folder)
	assert.Same(t, b, entries[2].Folder)
	assert.Same(t, c, entries[3].Folder)
}

func TestEnumerate_MultipleRootsKeepOrder(t *testing.T) {
	inbox := mailtest.NewFolder("", "Inbox", mailtest.NewFolder("", "Zeta"), mailtest.NewFolder("", "Alpha"))
	sent := mailtest.NewFolder("", "Sent Items")

	entries := Enumerate([]model.Folder{inbox, sent}, nil)

	assert.Equal(t, []string{"Inbox", "Inbox/Zeta", "Inbox/Alpha", "Sent Items"}, names(entries))
}

func TestEnumerate_InaccessibleSubtree(t *testing.T) {
	a := mailtest.NewFolder("", "A", mailtest.NewFolder("", "Hidden"))
	a.ChildrenErr = errors.New("access denied")
	c := mailtest.NewFolder("", "C")
	root := mailtest.NewFolder("", "Root", a, c)

	var entries []model.DisplayEntry
	assert.NotPanics(t, func() {
		entries = Enumerate([]model.Folder{root}, nil)
	})

	assert.Equal(t, []string{"Root", "Root/A", "Root/C"}, names(entries))
}

func TestEnumerate_Empty(t *testing.T) {
	assert.Empty(t, Enumerate(nil, nil))
}

func TestDisplayName(t *testing.T) {
	child := mailtest.NewFolder("", "Child")
	root := mailtest.NewFolder("", "Root", child)
	entries := Enumerate([]model.Folder{root}, nil)

	assert.Equal(t, "Root/Child", DisplayName(entries, child))
	assert.Equal(t, "Other", DisplayName(entries, mailtest.NewFolder("", "Other")))
}
