package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// codeBlockRe matches fenced code blocks (``` ... ```).
var codeBlockRe = regexp.MustCompile("(?s)```.*?```")

// depVersionRe matches patterns like "React 18.2", "Go 1.22.3", "node v20.x",
// "PostgreSQL 16.1", or any word followed by an optional 'v' and a version.
var depVersionRe = regexp.MustCompile(`(?i)\b([A-Za-z][A-Za-z0-9_.-]*)\s+v?(\d+\.\d+(?:\.\d+)?(?:\.x)?)\b`)

// Source is a named document taking part in a coherence check, such as the
// tech stack or one worker's proposal.
type Source struct {
	Name    string
	Content string
}

// Conflict is a dependency pinned to different versions by two sources.
type Conflict struct {
	Dependency string
	SourceA    string
	SourceB    string
	Detail     string
}

// CheckCoherence flags dependencies that appear with different versions in
// different sources. Versions inside fenced code blocks are ignored. The
// result is sorted by dependency and then by version.
func CheckCoherence(sources []Source) []Conflict {
	// dependency -> version -> source names
	depVersions := make(map[string]map[string][]string)

	for _, src := range sources {
		cleaned := codeBlockRe.ReplaceAllString(src.Content, "")
		seen := make(map[string]bool)
		for _, m := range depVersionRe.FindAllStringSubmatch(cleaned, -1) {
			name := strings.ToLower(m[1])
			version := m[2]
			key := name + "@" + version
			if seen[key] {
				continue
			}
			seen[key] = true

			if depVersions[name] == nil {
				depVersions[name] = make(map[string][]string)
			}
			depVersions[name][version] = append(depVersions[name][version], src.Name)
		}
	}

	deps := make([]string, 0, len(depVersions))
	for d := range depVersions {
		deps = append(deps, d)
	}
	sort.Strings(deps)

	var conflicts []Conflict
	for _, dep := range deps {
		versions := depVersions[dep]
		if len(versions) <= 1 {
			continue
		}
		vs := make([]string, 0, len(versions))
		for v := range versions {
			vs = append(vs, v)
		}
		sort.Strings(vs)

		for i := 0; i < len(vs); i++ {
			for j := i + 1; j < len(vs); j++ {
				a, b := versions[vs[i]], versions[vs[j]]
				conflicts = append(conflicts, Conflict{
					Dependency: dep,
					SourceA:    a[0],
					SourceB:    b[0],
					Detail: fmt.Sprintf("%s %s (%s) vs %s (%s)",
						dep, vs[i], strings.Join(a, ", "), vs[j], strings.Join(b, ", ")),
				})
			}
		}
	}
	return conflicts
}

// conflictNotes renders conflicts as a bullet list for the arbiter prompt.
func conflictNotes(conflicts []Conflict) string {
	if len(conflicts) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Version conflicts between the documents:\n")
	for _, c := range conflicts {
		fmt.Fprintf(&sb, "- %s\n", c.Detail)
	}
	return sb.String()
}
