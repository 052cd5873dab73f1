package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind selects how a transformation's results are interpreted.
type Kind string

const (
	KindMap         Kind = "map"
	KindFilter      Kind = "filter"
	KindSplit       Kind = "split"
	KindConcatenate Kind = "concatenate"
)

// ModeJavaScript is the only sandbox dialect. An empty mode means the same.
const ModeJavaScript = "javascript"

// Kinds lists every supported kind.
var Kinds = []Kind{KindMap, KindFilter, KindSplit, KindConcatenate}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if k == v {
			return true
		}
	}
	return false
}

// label is the metrics label for k. Unknown kinds share one value.
func (k Kind) label() string {
	if !k.Valid() {
		return "invalid"
	}
	return string(k)
}

// Paths is a list of column names. In JSON it accepts either a single string
// or a list of strings.
type Paths []string

// UnmarshalJSON accepts "col", ["a", "b"] or null.
func (p *Paths) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Paths{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("expected a column name or a list of column names: %w", err)
	}
	*p = list
	return nil
}

// Request is one transformation run.
type Request struct {
	Type       Kind   `json:"type"`
	TableID    int64  `json:"table_id,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Datapath   Paths  `json:"datapath"`
	Code       string `json:"code"`
	Tolerance  int    `json:"tolerance"`
	Rows       *int   `json:"rows,omitempty"`
	Outputpath Paths  `json:"outputpath,omitempty"`
}

// ValidationError is a request the caller must fix; nothing was executed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks everything that can be checked without compiling code or
// reading the table.
func (r Request) Validate() error {
	if !r.Type.Valid() {
		return invalid("type", "unknown transformation type %q", r.Type)
	}
	if r.Mode != "" && r.Mode != ModeJavaScript {
		return invalid("mode", "unsupported mode %q; only %q is available", r.Mode, ModeJavaScript)
	}
	if len(r.Datapath) == 0 {
		return invalid("datapath", "at least one column is required")
	}
	for _, c := range r.Datapath {
		if strings.TrimSpace(c) == "" {
			return invalid("datapath", "column names must not be empty")
		}
	}
	if strings.TrimSpace(r.Code) == "" {
		return invalid("code", "must not be empty")
	}
	if r.Tolerance < 0 {
		return invalid("tolerance", "must be non-negative, got %d", r.Tolerance)
	}
	if r.Rows != nil && *r.Rows < 0 {
		return invalid("rows", "must be non-negative, got %d", *r.Rows)
	}

	switch r.Type {
	case KindMap, KindFilter:
		if len(r.Outputpath) > 1 {
			return invalid("outputpath", "%s writes a single column, got %d", r.Type, len(r.Outputpath))
		}
	case KindSplit:
		if len(r.Outputpath) == 0 {
			return invalid("outputpath", "split requires at least one output column")
		}
	}
	return nil
}

// limit converts Rows into a store limit; -1 means all rows.
func (r Request) limit() int {
	if r.Rows == nil {
		return -1
	}
	return *r.Rows
}
