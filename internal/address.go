package internal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// cellRefRe matches a cell reference like A1, $B$2, AA100
var cellRefRe = regexp.MustCompile(`^\$?([A-Z]+)\$?(\d+)$`)

// plainSheetRe matches sheet names that can appear unquoted in a reference.
var plainSheetRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// ParseRange parses an address like "Sheet1!A1:Z50" or a bare "A1:Z50" and
// returns (sheet, startRow, startCol, endRow, endCol) in 1-indexed form.
// sheet is empty when the address has no sheet part.
func ParseRange(address string) (sheet string, startRow, startCol, endRow, endCol int, err error) {
	rangePart := address
	if i := strings.LastIndex(address, "!"); i >= 0 {
		sheet = unquoteSheet(address[:i])
		rangePart = address[i+1:]
	}

	fromRef, toRef, hasColon := strings.Cut(rangePart, ":")
	if !hasColon {
		toRef = fromRef // single cell
	}

	startCol, startRow, err = ParseCell(fromRef)
	if err != nil {
		return "", 0, 0, 0, 0, fmt.Errorf("invalid start of range %q: %w", fromRef, err)
	}
	endCol, endRow, err = ParseCell(toRef)
	if err != nil {
		return "", 0, 0, 0, 0, fmt.Errorf("invalid end of range %q: %w", toRef, err)
	}

	// Normalize order
	if startRow > endRow {
		startRow, endRow = endRow, startRow
	}
	if startCol > endCol {
		startCol, endCol = endCol, startCol
	}

	return sheet, startRow, startCol, endRow, endCol, nil
}

// ParseCell parses a single reference like "H5" or "$B$2" into 1-indexed
// (col, row).
func ParseCell(ref string) (col, row int, err error) {
	ref = strings.ReplaceAll(strings.TrimSpace(ref), "$", "")
	m := cellRefRe.FindStringSubmatch(strings.ToUpper(ref))
	if m == nil {
		return 0, 0, fmt.Errorf("invalid cell reference %q", ref)
	}
	col = letterToCol(m[1])
	row, _ = strconv.Atoi(m[2])
	if row < 1 {
		return 0, 0, fmt.Errorf("invalid cell reference %q: row must be positive", ref)
	}
	return col, row, nil
}

// ColToLetter converts a 1-indexed column number to Excel letter(s)
func ColToLetter(col int) string {
	result := ""
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}

// CellName returns the A1-style name of a 1-indexed cell.
func CellName(col, row int) string {
	return ColToLetter(col) + strconv.Itoa(row)
}

// FormatAddress builds an address string like "Sheet1!A1:Z50". The sheet
// name is quoted when it needs to be; an empty sheet yields a bare range.
func FormatAddress(sheet string, startRow, startCol, endRow, endCol int) string {
	from := CellName(startCol, startRow)
	to := CellName(endCol, endRow)
	ref := from
	if from != to {
		ref = from + ":" + to
	}
	if sheet == "" {
		return ref
	}
	return QuoteSheet(sheet) + "!" + ref
}

// FormatAbsolute builds an absolute reference like "Sheet1!$A$2:$A$11", the
// form chart series expect.
func FormatAbsolute(sheet string, startRow, startCol, endRow, endCol int) string {
	abs := func(col, row int) string {
		return "$" + ColToLetter(col) + "$" + strconv.Itoa(row)
	}
	ref := abs(startCol, startRow) + ":" + abs(endCol, endRow)
	if sheet == "" {
		return ref
	}
	return QuoteSheet(sheet) + "!" + ref
}

// QuoteSheet quotes a sheet name for use in a reference when required.
func QuoteSheet(name string) string {
	if plainSheetRe.MatchString(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func unquoteSheet(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

func letterToCol(letters string) int {
	col := 0
	for _, c := range letters {
		col = col*26 + int(c-'A'+1)
	}
	return col
}
