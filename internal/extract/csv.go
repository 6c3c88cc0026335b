package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"prepbot/internal/document"
)

// extractCSV renders the whole file as one markdown table chunk. The first record is the header.
func extractCSV(path string) ([]document.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		records = append(records, rec)
	}

	content := ""
	if len(records) > 0 {
		header := records[0]
		rows := records[1:]
		for i, row := range rows {
			if len(row) > len(header) {
				return nil, fmt.Errorf("parse csv: line %d has %d fields, header has %d", i+2, len(row), len(header))
			}
			for len(row) < len(header) {
				row = append(row, "")
			}
			rows[i] = row
		}
		content = MarkdownTable(header, rows)
	}

	return []document.Chunk{{
		Content:  content,
		Type:     document.TypeTable,
		Metadata: document.Metadata{Source: path},
	}}, nil
}

// MarkdownTable renders a pipe table. Numeric columns are right aligned.
func MarkdownTable(header []string, rows [][]string) string {
	cols := len(header)
	widths := make([]int, cols)
	numeric := make([]bool, cols)

	clean := func(s string) string {
		s = strings.ReplaceAll(s, "\r\n", " ")
		s = strings.ReplaceAll(s, "\n", " ")
		return strings.ReplaceAll(strings.TrimSpace(s), "|", `\|`)
	}

	head := make([]string, cols)
	for i, h := range header {
		head[i] = clean(h)
	}
	body := make([][]string, len(rows))
	for r, row := range rows {
		body[r] = make([]string, cols)
		for i := 0; i < cols; i++ {
			body[r][i] = clean(row[i])
		}
	}

	for i := 0; i < cols; i++ {
		widths[i] = max(3, utf8.RuneCountInString(head[i]))
		seen := false
		numeric[i] = true
		for _, row := range body {
			widths[i] = max(widths[i], utf8.RuneCountInString(row[i]))
			if row[i] == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseFloat(row[i], 64); err != nil {
				numeric[i] = false
			}
		}
		numeric[i] = numeric[i] && seen
	}

	pad := func(s string, i int) string {
		gap := strings.Repeat(" ", widths[i]-utf8.RuneCountInString(s))
		if numeric[i] {
			return gap + s
		}
		return s + gap
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		sb.WriteString("|")
		for i, c := range cells {
			sb.WriteString(" " + pad(c, i) + " |")
		}
		sb.WriteString("\n")
	}

	writeRow(head)
	sb.WriteString("|")
	for i := 0; i < cols; i++ {
		if numeric[i] {
			sb.WriteString(strings.Repeat("-", widths[i]+1) + ":|")
		} else {
			sb.WriteString(":" + strings.Repeat("-", widths[i]+1) + "|")
		}
	}
	sb.WriteString("\n")
	for _, row := range body {
		writeRow(row)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
