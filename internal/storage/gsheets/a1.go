package gsheets

import (
	"fmt"
	"regexp"
	"strings"
)

var plainSheetName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// columnLetter converts a 0-based column index to A1 letters.
func columnLetter(col int) string {
	var b []byte
	for col >= 0 {
		b = append([]byte{byte('A' + col%26)}, b...)
		col = col/26 - 1
	}
	return string(b)
}

func quoteSheet(name string) string {
	if plainSheetName.MatchString(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// columnsRange addresses whole columns 0..width-1, e.g. Tasks!A:H.
func columnsRange(sheet string, width int) string {
	return fmt.Sprintf("%s!A:%s", quoteSheet(sheet), columnLetter(width-1))
}

// rowRange addresses one row limited to width columns, e.g. Tasks!A5:H5.
func rowRange(sheet string, row, width int) string {
	return fmt.Sprintf("%s!A%d:%s%d", quoteSheet(sheet), row, columnLetter(width-1), row)
}

// cellRange addresses one cell, e.g. Tasks!E5.
func cellRange(sheet string, row, col int) string {
	return fmt.Sprintf("%s!%s%d", quoteSheet(sheet), columnLetter(col), row)
}
