// Package store provides SQLite-backed access to the Notes application's
// on-disk Core Data store, using ncruces/go-sqlite3/driver for a
// database/sql interface with no cgo dependency.
package store

// Entity kind discriminants from ZICCLOUDSYNCINGOBJECT.Z_ENT.
const (
	EntNote       = 12
	EntAccount    = 14
	EntFolder     = 15
	EntAttachment = 5
	EntNoteData   = 19
)

// UTI filter values used to classify rows that share the polymorphic
// ZICCLOUDSYNCINGOBJECT table.
const (
	UTITable        = "com.apple.notes.table"
	UTIHashtag      = "com.apple.notes.inlinetextattachment.hashtag"
	UTILink         = "com.apple.notes.inlinetextattachment.link"
	recentlyDeleted = "Recently Deleted"
)

// NoteSummary is the immutable snapshot of a note row produced by listing
// or search operations.
type NoteSummary struct {
	ID         string // ZIDENTIFIER
	PrimaryKey int64  // Z_PK
	Title      string
	FolderName string // empty if the note has no folder
	FolderID   string
	CreatedAt  int64 // Unix seconds
	ModifiedAt int64 // Unix seconds
	Snippet    string
	Deleted    bool
}

// Folder describes a row from ZICCLOUDSYNCINGOBJECT with Z_ENT=EntFolder,
// joined against its owning account.
type Folder struct {
	ID          string
	PrimaryKey  int64
	Name        string
	AccountID   string
	AccountName string
	IsPrimary   bool
	CreatedAt   int64
}

// InlineAttachment is a hashtag or note-link row keyed by the owning
// note's primary key.
type InlineAttachment struct {
	ID          string
	UTI         string
	DisplayText string // ZALTTEXT
	TargetURL   string // ZTOKENCONTENTIDENTIFIER, present for links
}

// TableReference identifies where a mergeable-data blob should be fetched
// for a given UUID, gated to the table UTI.
type TableReference struct {
	UUID string
	UTI  string
}

// Attachment describes a file attachment row.
type Attachment struct {
	ID         string // x-coredata://<store-uuid>/ICAttachment/p<primary-key>
	Identifier string
	Name       string
	UTI        string
	FileSize   int64
	CreatedAt  int64
	ModifiedAt int64
}

// ListFilter bounds a list-notes query.
type ListFilter struct {
	FolderID       string
	Limit          int
	IncludeDeleted bool
	ModifiedAfter  *int64
	ModifiedBefore *int64
	CreatedAfter   *int64
	CreatedBefore  *int64
}
