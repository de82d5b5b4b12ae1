package scheduling

import "github.com/google/uuid"

// DeleteSelection is the closed set of bulk-delete criteria. Exactly one
// variant is supplied per request; the store switches exhaustively over the
// concrete types instead of sniffing optional fields.
type DeleteSelection interface {
	isDeleteSelection()
}

// DeleteByIDs removes an explicit list of blocks.
type DeleteByIDs struct {
	IDs []uuid.UUID
}

// DeleteSingleDate removes every block on one civil date.
type DeleteSingleDate struct {
	Date string
}

// DeleteDateRange removes every block between From and To inclusive.
type DeleteDateRange struct {
	From string
	To   string
}

// DeleteAvailableInRange removes only still-available blocks between From and
// To inclusive.
type DeleteAvailableInRange struct {
	From string
	To   string
}

func (DeleteByIDs) isDeleteSelection()            {}
func (DeleteSingleDate) isDeleteSelection()       {}
func (DeleteDateRange) isDeleteSelection()        {}
func (DeleteAvailableInRange) isDeleteSelection() {}

// DeleteResult reports how a bulk delete went: blocks holding a non-cancelled
// appointment are skipped, never removed.
type DeleteResult struct {
	Deleted int `json:"deleted_count"`
	Skipped int `json:"skipped_count"`
}
