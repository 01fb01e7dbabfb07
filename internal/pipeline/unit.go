package pipeline

import (
	"regexp"
	"strings"
)

// FallbackUnit is the unit of work used when the milestone table has no
// data rows.
const FallbackUnit = "Implement the core functionality described in the project plan"

var separatorCell = regexp.MustCompile(`^:?-{1,}:?$`)

// SelectUnit picks the unit of work from a pipe table: the second column of
// the first data row. The first row of every table is its header, whether
// or not a separator row follows it, and rows directly above a separator
// are headers too. ok is false when no data row exists and FallbackUnit is
// returned instead.
func SelectUnit(table string) (unit string, ok bool) {
	for _, rows := range tables(table) {
		header := map[int]bool{}
		if !isSeparator(rows[0]) {
			header[0] = true
		}
		for i, r := range rows {
			if isSeparator(r) && i > 0 {
				header[i-1] = true
			}
		}
		for i, r := range rows {
			if header[i] || isSeparator(r) || len(r) < 2 {
				continue
			}
			if desc := strings.TrimSpace(r[1]); desc != "" {
				return desc, true
			}
		}
	}
	return FallbackUnit, false
}

// tables splits text into runs of consecutive pipe rows.
func tables(text string) [][][]string {
	var (
		out [][][]string
		cur [][]string
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") {
			if cur != nil {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, cells(line))
	}
	if cur != nil {
		out = append(out, cur)
	}
	return out
}

// UnitFolder turns a unit description into the folder name its proposals
// are stored under.
func UnitFolder(unit string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(unit) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case !underscore && b.Len() > 0:
			b.WriteByte('_')
			underscore = true
		}
		if b.Len() >= 48 {
			break
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return "milestone"
	}
	return "milestone_" + slug
}

func cells(row string) []string {
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")
	parts := strings.Split(row, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func isSeparator(row []string) bool {
	if len(row) == 0 {
		return false
	}
	for _, c := range row {
		if !separatorCell.MatchString(strings.ReplaceAll(c, " ", "")) {
			return false
		}
	}
	return true
}
