package csvcodec

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrNoIDColumn is returned when the header row has neither a productId nor
// an entityId column.
var ErrNoIDColumn = errors.New("invalid csv: missing required column productId")

// ErrEmptyFile is returned for input without a header row.
var ErrEmptyFile = errors.New("empty file")

// utf8BOM is stripped from the start of input; spreadsheet tools add it on export.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RowError describes a row that could not be turned into a Record.
type RowError struct {
	Line int
	Raw  string
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// ParseResult is the outcome of Parse: the usable records and the rows that
// were rejected, both in file order.
type ParseResult struct {
	Headers   []string
	Records   []Record
	RowErrors []*RowError
}

// Parse reads an RFC 4180 CSV document. Quoted cells may contain commas,
// doubled quotes and line breaks. Blank lines are skipped. A row whose id
// does not parse as an integer is reported in RowErrors and does not stop
// the parse, and neither does a row with a stray quote. A quoted field left
// open until the end of input fails the whole parse.
func Parse(r io.Reader) (*ParseResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	idCol := -1
	for i, h := range headers {
		if h == IDHeader || h == EntityIDHeader {
			idCol = i
			break
		}
	}
	if idCol < 0 {
		return nil, ErrNoIDColumn
	}

	res := &ParseResult{Headers: headers}
	for {
		start := cr.InputOffset()
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			raw := data[start:cr.InputOffset()]
			var pe *csv.ParseError
			if !errors.As(err, &pe) || unterminated(pe, raw, cr.InputOffset() == int64(len(data))) {
				return nil, fmt.Errorf("invalid csv: %w", err)
			}
			res.RowErrors = append(res.RowErrors, &RowError{
				Line: pe.StartLine,
				Raw:  strings.TrimRight(string(raw), "\r\n"),
				Err:  fmt.Errorf("invalid csv: %w", pe),
			})
			continue
		}
		line, _ := cr.FieldPos(0)

		if isBlank(row) {
			continue
		}

		var idCell string
		if idCol < len(row) {
			idCell = strings.TrimSpace(row[idCol])
		}
		id, err := strconv.ParseInt(idCell, 10, 64)
		if err != nil {
			res.RowErrors = append(res.RowErrors, &RowError{
				Line: line,
				Raw:  strings.Join(row, ","),
				Err:  fmt.Errorf("invalid number in %s: %q", headers[idCol], idCell),
			})
			continue
		}

		rec := Record{EntityID: id, Line: line, Values: make(map[string]string, len(headers))}
		for i, h := range headers {
			if i == idCol || h == "" {
				continue
			}
			if i < len(row) {
				rec.Values[h] = row[i]
			} else {
				rec.Values[h] = ""
			}
		}
		res.Records = append(res.Records, rec)
	}

	return res, nil
}

// unterminated reports whether pe is a quoted field left open until the end
// of input. Such a field swallows every following row, so the file cannot be
// trusted. Other syntax errors affect only their own record.
func unterminated(pe *csv.ParseError, raw []byte, atEOF bool) bool {
	switch {
	case errors.Is(pe.Err, csv.ErrBareQuote), errors.Is(pe.Err, csv.ErrFieldCount):
		return false
	case errors.Is(pe.Err, csv.ErrQuote):
		return atEOF && bytes.Count(raw, []byte{'"'})%2 == 1
	default:
		return true
	}
}

// isBlank reports whether every cell of row is empty or whitespace.
func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Headers returns the header row written for a default/target locale pair.
func Headers(defaultLocale, targetLocale string) []string {
	h := make([]string, 0, 1+2*len(Fields))
	h = append(h, IDHeader)
	for _, f := range Fields {
		h = append(h, Key(f, defaultLocale), Key(f, targetLocale))
	}
	return h
}

// Write serializes records with the fixed header order. Every value cell is
// quoted with embedded quotes doubled; ids are written bare; a missing value
// is written as "".
func Write(w io.Writer, records []Record, defaultLocale, targetLocale string) error {
	headers := Headers(defaultLocale, targetLocale)
	if _, err := io.WriteString(w, strings.Join(headers, ",")); err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := io.WriteString(w, "\n"+rec.Raw(headers)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Stringify is Write into a string.
func Stringify(records []Record, defaultLocale, targetLocale string) string {
	var b strings.Builder
	_ = Write(&b, records, defaultLocale, targetLocale)
	return b.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
