package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVParser handles one message per row. The header row names the role and
// content columns; without a recognizable header the first two columns are
// used and the first row is treated as data.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*Transcript, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	var b transcriptBuilder
	if len(records) == 0 {
		return b.build(baseTitle(filename)), nil
	}

	roleCol, contentCol := -1, -1
	for i, h := range records[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "role", "speaker", "author":
			roleCol = i
		case "content", "text", "message":
			contentCol = i
		}
	}
	rows := records[1:]
	if roleCol < 0 || contentCol < 0 {
		roleCol, contentCol = 0, 1
		rows = records
	}

	for _, row := range rows {
		if roleCol >= len(row) || contentCol >= len(row) {
			continue
		}
		b.message(row[roleCol], row[contentCol])
	}
	return b.build(baseTitle(filename)), nil
}
