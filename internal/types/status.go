package types

// Status is the row lifecycle of a persisted record, independent of any domain status.
// Soft deleted rows are excluded from queries.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)
