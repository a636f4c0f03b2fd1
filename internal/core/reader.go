package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
)

// DateLayout is the accepted date cell format, e.g. "June 2010".
const DateLayout = "January 2006"

// Logical columns every file must provide.
const (
	ColTitle  = "title"
	ColAuthor = "author"
	ColDate   = "date"
	ColViews  = "views"
	ColLikes  = "likes"
	ColLink   = "link"
)

// RequiredColumns lists the header names a file must contain.
var RequiredColumns = []string{ColTitle, ColAuthor, ColDate, ColViews, ColLikes, ColLink}

// headerAliases maps alternative header names onto a required column.
var headerAliases = map[string]string{
	"speaker": ColAuthor,
}

// normalizeHeader trims and case-folds a header cell. A Caser holds state,
// so each call gets its own.
func normalizeHeader(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// RowTokenizer yields raw CSV records. Next returns io.EOF when exhausted.
// A *csv.ParseError is reported for a malformed record; the tokenizer stays
// usable and the following call continues with the next record.
type RowTokenizer interface {
	Next() ([]string, error)
}

type csvTokenizer struct {
	r *csv.Reader
}

// NewCSVTokenizer tokenizes RFC 4180 input. Records may have any number of
// fields; blank lines are skipped and never produce a record.
func NewCSVTokenizer(r io.Reader) RowTokenizer {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return &csvTokenizer{r: cr}
}

func (t *csvTokenizer) Next() ([]string, error) {
	return t.r.Read()
}

// TalkReader turns raw records into typed rows. It validates the header on
// construction and is single-pass: resuming means opening the file again
// and calling Skip.
type TalkReader struct {
	tok      RowTokenizer
	header   HeaderIndex
	rowsRead int64
	done     bool
}

// NewTalkReader reads and validates the header row from tok.
// It returns ErrEmptyFile when there is no header and a *MissingColumnsError
// when required columns are absent. Both are structural failures.
func NewTalkReader(tok RowTokenizer) (*TalkReader, error) {
	record, err := tok.Next()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	header := buildHeaderIndex(record)
	if err := validateHeader(header); err != nil {
		return nil, err
	}
	return &TalkReader{tok: tok, header: header}, nil
}

// NewTalkReaderFromCSV is NewTalkReader over cleaned CSV input.
func NewTalkReaderFromCSV(r io.Reader) (*TalkReader, error) {
	return NewTalkReader(NewCSVTokenizer(NewCleanReader(r)))
}

func buildHeaderIndex(record []string) HeaderIndex {
	idx := make(HeaderIndex, len(record))
	for i, name := range record {
		key := normalizeHeader(name)
		if key == "" {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	for alias, canonical := range headerAliases {
		if pos, ok := idx[alias]; ok {
			if _, has := idx[canonical]; !has {
				idx[canonical] = pos
			}
		}
	}
	return idx
}

func validateHeader(idx HeaderIndex) error {
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingColumnsError{Columns: missing}
	}
	return nil
}

// Header returns the column index built from the header row.
func (tr *TalkReader) Header() HeaderIndex { return tr.header }

// RowsRead returns the number of data records consumed so far, including
// skipped and unparseable ones. The header is never counted.
func (tr *TalkReader) RowsRead() int64 { return tr.rowsRead }

// Next returns the next row. ok is false once the input is exhausted.
// Row-level problems are reported in the result; err is reserved for
// failures of the underlying stream.
func (tr *TalkReader) Next() (res RowResult, ok bool, err error) {
	if tr.done {
		return RowResult{}, false, nil
	}

	record, err := tr.tok.Next()
	if errors.Is(err, io.EOF) {
		tr.done = true
		return RowResult{}, false, nil
	}

	var pe *csv.ParseError
	switch {
	case errors.As(err, &pe):
		tr.rowsRead++
		return RowResult{Err: &RowError{Line: tr.rowsRead, Reason: pe.Err.Error()}}, true, nil
	case err != nil:
		return RowResult{}, false, fmt.Errorf("read row %d: %w", tr.rowsRead+1, err)
	}

	tr.rowsRead++
	row, rowErr := tr.parse(record, tr.rowsRead)
	if rowErr != nil {
		return RowResult{Err: rowErr}, true, nil
	}
	return RowResult{Row: row}, true, nil
}

// ReadBatch returns up to n rows. An empty slice means the input is
// exhausted.
func (tr *TalkReader) ReadBatch(n int) ([]RowResult, error) {
	batch := make([]RowResult, 0, n)
	for len(batch) < n {
		res, ok, err := tr.Next()
		if err != nil {
			return batch, err
		}
		if !ok {
			break
		}
		batch = append(batch, res)
	}
	return batch, nil
}

// Skip consumes up to n data records without parsing them and returns how
// many were skipped. Malformed records count toward n.
func (tr *TalkReader) Skip(n int64) (int64, error) {
	var skipped int64
	for skipped < n && !tr.done {
		_, err := tr.tok.Next()
		if errors.Is(err, io.EOF) {
			tr.done = true
			break
		}
		var pe *csv.ParseError
		if err != nil && !errors.As(err, &pe) {
			return skipped, fmt.Errorf("skip row %d: %w", tr.rowsRead+1, err)
		}
		tr.rowsRead++
		skipped++
	}
	return skipped, nil
}

func (tr *TalkReader) parse(record []string, line int64) (*ParsedRow, *RowError) {
	field := func(col string) (string, *RowError) {
		i := tr.header[col]
		if i >= len(record) {
			return "", &RowError{Line: line, Field: col, Reason: "missing value"}
		}
		v := strings.TrimSpace(record[i])
		if v == "" {
			return "", &RowError{Line: line, Field: col, Reason: "required field is empty"}
		}
		return v, nil
	}

	row := &ParsedRow{Line: line}
	var rerr *RowError

	if row.Title, rerr = field(ColTitle); rerr != nil {
		return nil, rerr
	}
	if row.Speaker, rerr = field(ColAuthor); rerr != nil {
		return nil, rerr
	}

	raw, rerr := field(ColDate)
	if rerr != nil {
		return nil, rerr
	}
	date, err := ParseMonthYear(raw)
	if err != nil {
		return nil, &RowError{Line: line, Field: ColDate, Reason: err.Error()}
	}
	row.Date = date

	for _, num := range []struct {
		col string
		dst *int64
	}{{ColViews, &row.Views}, {ColLikes, &row.Likes}} {
		raw, rerr := field(num.col)
		if rerr != nil {
			return nil, rerr
		}
		v, err := ParseCount(raw)
		if err != nil {
			return nil, &RowError{Line: line, Field: num.col, Reason: err.Error()}
		}
		*num.dst = v
	}

	if row.Link, rerr = field(ColLink); rerr != nil {
		return nil, rerr
	}
	return row, nil
}

// ParseMonthYear parses "June 2010" style dates to the first day of that
// month in UTC.
func ParseMonthYear(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected month name and 4-digit year", s)
	}
	return t, nil
}

// ParseCount parses a non-negative integer, ignoring thousands separators
// and whitespace ("1,234 567" is 1234567).
func ParseCount(s string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid number %q: must be non-negative", s)
	}
	return v, nil
}
