package store

// Project groups tables.
type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Table is a loaded table's metadata. Columns is the ordered header.
type Table struct {
	ID          int64    `json:"id"`
	ProjectID   int64    `json:"project"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Columns     []string `json:"columns"`
	Size        int      `json:"size"`
	// Fingerprint identifies the loaded content; the loader uses it to skip
	// re-importing an identical file.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Row is one stored row. Cells are decoded JSON values, positionally aligned
// with the table's columns.
type Row struct {
	TableID int64 `json:"table"`
	Index   int   `json:"index"`
	Cells   []any `json:"row"`
}

// OnError says what applying a saved transformation does with a failed row.
type OnError string

const (
	OnErrorSetToBlank   OnError = "set_to_blank"
	OnErrorStoreError   OnError = "store_error"
	OnErrorKeepOriginal OnError = "keep_original"
	OnErrorAbort        OnError = "abort"
)

// Valid reports whether o is a known policy.
func (o OnError) Valid() bool {
	switch o {
	case OnErrorSetToBlank, OnErrorStoreError, OnErrorKeepOriginal, OnErrorAbort:
		return true
	}
	return false
}

// Transformation is a saved transformation attached to a table.
type Transformation struct {
	ID          int64    `json:"id"`
	TableID     int64    `json:"table"`
	Name        string   `json:"name"`
	Mode        string   `json:"mode"`
	Type        string   `json:"type"`
	Datapath    []string `json:"datapath"`
	Outputpath  []string `json:"outputpath"`
	Code        string   `json:"code"`
	OnError     OnError  `json:"on_error"`
	IsDraft     bool     `json:"is_draft"`
	Order       int      `json:"order"`
	InsertAfter *int64   `json:"insert_after"`
}
