package importer

import (
	"bufio"
	"io"
	"strings"
)

// TextParser handles plain text transcripts with "role:" line prefixes.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Transcript, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var b transcriptBuilder
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			b.paragraph()
			continue
		}
		b.line(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return b.build(baseTitle(filename)), nil
}
