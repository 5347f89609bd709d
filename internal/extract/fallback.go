package extract

import (
	"fmt"
	"strings"
)

// DelimitedParser is the optional fallback for responses where the model
// returned a delimited table instead of JSON. The first non-empty line is
// the header row.
type DelimitedParser struct {
	Separator string // defaults to ";"
}

func (p *DelimitedParser) Parse(text string) ([]map[string]any, error) {
	sep := p.Separator
	if sep == "" {
		sep = ";"
	}

	var headers []string
	var records []map[string]any
	for lineNo, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cells := strings.Split(line, sep)
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		if headers == nil {
			if len(cells) < 2 {
				return nil, fmt.Errorf("line %d: header row has %d column(s), need at least 2", lineNo+1, len(cells))
			}
			headers = cells
			continue
		}
		if len(cells) != len(headers) {
			return nil, fmt.Errorf("line %d: %d cell(s), header has %d", lineNo+1, len(cells), len(headers))
		}
		rec := make(map[string]any, len(cells))
		for i, h := range headers {
			rec[h] = cells[i]
		}
		records = append(records, rec)
	}

	if headers == nil || len(records) == 0 {
		return nil, fmt.Errorf("no delimited rows found")
	}
	return records, nil
}
