package models

// CellUpdate addresses one cell inside a worksheet section for a batched
// write. Row and Col are 1-based, matching the remote store's coordinates.
type CellUpdate struct {
	Row   int
	Col   int
	Value int
}
