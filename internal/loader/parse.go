package loader

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// Options configures CSV parsing. The zero value reads comma-separated input
// and keeps header names as written (NFC-normalized, whitespace collapsed).
type Options struct {
	// Comma is the field delimiter. When zero, ',' is used.
	Comma rune

	// TrimSpace trims leading/trailing whitespace from each cell.
	TrimSpace bool

	// SnakeCase rewrites headers to lowercase ASCII snake_case with accents
	// removed ("Höhe über NN" -> "hohe_uber_nn").
	SnakeCase bool
}

// Parsed is a decoded CSV file. Every row has exactly len(Columns) cells.
type Parsed struct {
	Columns []string
	Rows    [][]any

	// Fingerprint is an xxh3 digest of the normalized header and cells.
	Fingerprint string
}

// ErrNoHeader is returned for empty input.
var ErrNoHeader = errors.New("loader: missing header row")

// Parse reads a header row and the data rows from r. Rows shorter than the
// header are padded with empty strings; a row longer than the header adds
// col_N columns and pads the earlier rows.
func Parse(r io.Reader, opt Options) (Parsed, error) {
	cr := csv.NewReader(stripBOM(r))
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.FieldsPerRecord = -1

	h, err := cr.Read()
	if err == io.EOF {
		return Parsed{}, ErrNoHeader
	}
	if err != nil {
		return Parsed{}, fmt.Errorf("read csv header: %w", err)
	}
	columns := normalizeHeaders(h, opt)

	var rows [][]any
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Parsed{}, fmt.Errorf("read csv line %d: %w", line, err)
		}
		for len(rec) > len(columns) {
			columns = append(columns, uniqueName("col_"+strconv.Itoa(len(columns)), columns))
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			if opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	for i, row := range rows {
		for len(row) < len(columns) {
			row = append(row, "")
		}
		rows[i] = row
	}

	return Parsed{Columns: columns, Rows: rows, Fingerprint: fingerprint(columns, rows)}, nil
}

// stripBOM drops a leading UTF-8 byte order mark so that a quoted first
// header cell still parses.
func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && string(b) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// fingerprint hashes columns and cells with unit/record separators between
// them so that shifting a value across a cell boundary changes the digest.
func fingerprint(columns []string, rows [][]any) string {
	h := xxh3.New()
	for _, c := range columns {
		_, _ = h.WriteString(c)
		_, _ = h.Write([]byte{0x1f})
	}
	for _, row := range rows {
		_, _ = h.Write([]byte{0x1e})
		for _, v := range row {
			_, _ = h.WriteString(fmt.Sprint(v))
			_, _ = h.Write([]byte{0x1f})
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func normalizeHeaders(h []string, opt Options) []string {
	res := make([]string, 0, len(h))
	for i, col := range h {
		if i == 0 {
			col = strings.TrimPrefix(col, utf8BOM)
		}
		var name string
		if opt.SnakeCase {
			name = snakeCase(col)
		} else {
			name = cleanHeader(col)
		}
		if name == "" {
			name = "col_" + strconv.Itoa(i)
		}
		res = append(res, uniqueName(name, res))
	}
	return res
}

// cleanHeader NFC-normalizes s and collapses whitespace runs to one space.
func cleanHeader(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// snakeCase lowercases s, strips accents and keeps [a-z0-9] separated by
// single underscores.
func snakeCase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || unicode.IsSpace(r) || r == '-' || r == '.' || r == '/':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// uniqueName appends _2, _3, ... to name until it is not in taken.
func uniqueName(name string, taken []string) string {
	seen := func(n string) bool {
		for _, t := range taken {
			if t == n {
				return true
			}
		}
		return false
	}
	if !seen(name) {
		return name
	}
	for i := 2; ; i++ {
		if c := name + "_" + strconv.Itoa(i); !seen(c) {
			return c
		}
	}
}
