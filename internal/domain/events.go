package domain

// Event is the closed set of lifecycle events the core publishes.
// Collaborators subscribe for side effects (logging, header rewriting,
// search-index bookkeeping); publishing is fire-and-forget.
type Event interface {
	// EventName returns a stable name for logging and metrics.
	EventName() string
}

// AdditionEvent is published after a new record is successfully ingested.
type AdditionEvent struct {
	Media *Media
}

// ReplacedEvent is published after a record's underlying file is swapped.
// Original is a snapshot taken before the metadata mutation; Replacement
// is the record as persisted.
type ReplacedEvent struct {
	Original    *Media
	Replacement *Media
}

// DeletionEvent is published after a record and its files are removed.
type DeletionEvent struct {
	Media *Media
}

// DownloadingEvent is published after a successful file resolution at
// serve time, including the not-modified path.
type DownloadingEvent struct {
	Media       *Media
	Variant     Variant
	Path        string
	Mime        string
	NotModified bool
}

// ThumbnailRequestedEvent asks for (re)generation of a record's thumbnail.
type ThumbnailRequestedEvent struct {
	Media *Media
}

func (AdditionEvent) EventName() string           { return "addition" }
func (ReplacedEvent) EventName() string           { return "replaced" }
func (DeletionEvent) EventName() string           { return "deletion" }
func (DownloadingEvent) EventName() string        { return "downloading" }
func (ThumbnailRequestedEvent) EventName() string { return "thumbnail_requested" }
