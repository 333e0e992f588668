package model

// Folder is a node in a mail store's folder tree. Implementations are owned by
// the session that produced them and are only valid while it is open.
type Folder interface {
	Name() string
	// FolderPath is backslash-delimited from the store root, e.g. \\account\Inbox\Sub.
	FolderPath() string
	Folders() ([]Folder, error)
	Items() ([]Item, error)
}

// Store is a mailbox within a session (an account or a local folder set).
type Store interface {
	Name() string
	Folders() ([]Folder, error)
}

// Session is an authenticated connection to a mail source.
type Session interface {
	Stores() ([]Store, error)
	Close() error
}

// DisplayEntry pairs a folder with its slash-joined path from the traversal root.
type DisplayEntry struct {
	DisplayName string
	Folder      Folder
}
