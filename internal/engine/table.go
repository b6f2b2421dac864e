package engine

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var errUnsupportedFormat = errors.New("format is not supported")

// row is a physical row of the table. Number is 1-based.
type row struct {
	Number int
	Cells  []string
}

type table struct {
	rows []row
	// padded tables drop trailing empty cells, so short rows are not missing cells
	padded   bool
	warnings []string
}

func isTextFormat(format string) bool {
	switch format {
	case "csv", "tsv", "txt", "":
		return true
	}
	return false
}

func readCSV(data []byte, format string, dialect CSVDialect) (*table, error) {
	t := &table{}

	delimiter := dialect.Delimiter
	if delimiter == "" {
		if format == "tsv" {
			delimiter = "\t"
		} else {
			delimiter = sniffDelimiter(data)
		}
	}
	comma, size := utf8.DecodeRuneInString(delimiter)
	if size != len(delimiter) || comma == '"' || comma == '\r' || comma == '\n' {
		return nil, fmt.Errorf("invalid delimiter %q", delimiter)
	}
	if dialect.QuoteChar != "" && dialect.QuoteChar != `"` {
		t.warnings = append(t.warnings, fmt.Sprintf("quoteChar %q is not supported, using '\"'", dialect.QuoteChar))
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = dialect.SkipInitialSpace

	for n := 1; ; n++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		t.rows = append(t.rows, row{Number: n, Cells: record})
	}
	return t, nil
}

const sniffLines = 10

// sniffDelimiter picks the most frequent candidate in the first lines.
func sniffDelimiter(data []byte) string {
	lines := bytes.SplitN(data, []byte("\n"), sniffLines+1)
	if len(lines) > sniffLines {
		lines = lines[:sniffLines]
	}
	best, bestCount := ",", 0
	for _, candidate := range []string{",", ";", "\t", "|"} {
		count := 0
		for _, line := range lines {
			count += countOutsideQuotes(line, candidate[0])
		}
		if count > bestCount {
			best, bestCount = candidate, count
		}
	}
	return best
}

func countOutsideQuotes(line []byte, c byte) int {
	count, quoted := 0, false
	for _, b := range line {
		switch {
		case b == '"':
			quoted = !quoted
		case b == c && !quoted:
			count++
		}
	}
	return count
}

func readExcel(data []byte, dialect ExcelDialect) (*table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := dialect.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}

	t := &table{padded: true}
	for i, cells := range rows {
		t.rows = append(t.rows, row{Number: i + 1, Cells: cells})
	}
	return t, nil
}

func readTable(data []byte, format string, dialect Dialect) (*table, error) {
	switch {
	case isTextFormat(format):
		return readCSV(data, format, dialect.CSV)
	case format == "xlsx" || format == "xls":
		return readExcel(data, dialect.Excel)
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// split separates the header from the data rows. Comment rows are dropped
// from both.
func (t *table) split(dialect Dialect) (labels []string, data []row) {
	headerRows := map[int]bool{}
	if dialect.HasHeader() {
		if len(dialect.HeaderRows) == 0 {
			headerRows[1] = true
		}
		for _, n := range dialect.HeaderRows {
			headerRows[n] = true
		}
	}
	commentRows := map[int]bool{}
	for _, n := range dialect.CommentRows {
		commentRows[n] = true
	}

	lastHeader := 0
	for n := range headerRows {
		if n > lastHeader {
			lastHeader = n
		}
	}

	var headers [][]string
	for _, r := range t.rows {
		if commentRows[r.Number] || isComment(r.Cells, dialect.CommentChar) {
			continue
		}
		if headerRows[r.Number] {
			headers = append(headers, r.Cells)
			continue
		}
		if r.Number < lastHeader {
			continue
		}
		data = append(data, r)
	}

	return joinHeaders(headers), data
}

func isComment(cells []string, commentChar string) bool {
	return commentChar != "" && len(cells) > 0 && strings.HasPrefix(cells[0], commentChar)
}

// joinHeaders merges multi line headers column by column with a space.
func joinHeaders(headers [][]string) []string {
	if len(headers) == 0 {
		return nil
	}
	if len(headers) == 1 {
		return headers[0]
	}
	width := 0
	for _, h := range headers {
		if len(h) > width {
			width = len(h)
		}
	}
	labels := make([]string, width)
	for i := range labels {
		var parts []string
		for _, h := range headers {
			if i < len(h) && h[i] != "" {
				parts = append(parts, h[i])
			}
		}
		labels[i] = strings.Join(parts, " ")
	}
	return labels
}
