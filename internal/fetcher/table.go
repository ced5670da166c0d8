package fetcher

import (
	"strings"

	"github.com/sells-group/fieldstock/internal/model"
)

// headerScanDepth bounds how far down a sheet the header row is searched for.
// Reports often carry a title block above the real header.
const headerScanDepth = 15

// minHeaderCells is how many non-blank cells a row needs to count as a header.
const minHeaderCells = 2

// buildTable turns raw records into a Table: leading title rows are skipped,
// blank rows are removed, and every data row is padded to the header width.
func buildTable(source string, records [][]string) *model.Table {
	t := &model.Table{Source: source}

	start := -1
	for i := 0; i < len(records) && i < headerScanDepth; i++ {
		if nonBlank(records[i]) >= minHeaderCells {
			start = i
			break
		}
	}
	if start < 0 {
		// Single-column files still have a header.
		for i, r := range records {
			if nonBlank(r) > 0 {
				start = i
				break
			}
		}
	}
	if start < 0 {
		return t
	}

	t.Headers = trimTrailingBlank(trimAll(records[start]))
	width := len(t.Headers)
	for _, r := range records[start+1:] {
		if nonBlank(r) == 0 {
			continue
		}
		row := trimAll(r)
		if len(row) < width {
			row = append(row, make([]string, width-len(row))...)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func nonBlank(r []string) int {
	n := 0
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func trimAll(r []string) []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func trimTrailingBlank(r []string) []string {
	end := len(r)
	for end > 0 && r[end-1] == "" {
		end--
	}
	return r[:end]
}
