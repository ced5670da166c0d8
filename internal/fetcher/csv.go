// Package fetcher loads consumption reports from local files, HTTP and FTP,
// and parses CSV and XLSX content into tables.
package fetcher

import (
	"bytes"
	"encoding/csv"
	"io"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/sells-group/fieldstock/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions configures the CSV parser.
type CSVOptions struct {
	Delimiter rune // 0 sniffs the delimiter from the first lines
	Source    string
}

// ReadCSV parses a delimited report into a Table. Input that is not valid
// UTF-8 is decoded as Windows-1252, which is what spreadsheet exports on
// Spanish-locale desktops produce.
func ReadCSV(r io.Reader, opts CSVOptions) (*model.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "csv: read")
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err != nil {
			return nil, eris.Wrap(err, "csv: decode windows-1252")
		}
		data = decoded
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(data)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // allow variable fields

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "csv: parse")
	}
	return buildTable(opts.Source, records), nil
}

// sniffDelimiter picks the candidate that appears most consistently across
// the first lines, ignoring separators inside quotes.
func sniffDelimiter(data []byte) rune {
	candidates := []rune{',', ';', '\t', '|'}
	lines := firstLines(data, 10)

	best, bestScore := ',', 0
	for _, c := range candidates {
		score, prev := 0, -1
		for _, line := range lines {
			n := countOutsideQuotes(line, c)
			if n == 0 {
				continue
			}
			score += n
			if prev >= 0 && n == prev {
				score += n // reward a stable column count
			}
			prev = n
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

func firstLines(data []byte, n int) [][]byte {
	var out [][]byte
	for len(data) > 0 && len(out) < n {
		i := bytes.IndexByte(data, '\n')
		var line []byte
		if i < 0 {
			line, data = data, nil
		} else {
			line, data = data[:i], data[i+1:]
		}
		if line = bytes.TrimSpace(line); len(line) > 0 {
			out = append(out, line)
		}
	}
	return out
}

func countOutsideQuotes(line []byte, sep rune) int {
	n, quoted := 0, false
	for _, r := range string(line) {
		switch {
		case r == '"':
			quoted = !quoted
		case r == sep && !quoted:
			n++
		}
	}
	return n
}
