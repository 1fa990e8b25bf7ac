package loader

import (
	"bufio"
	"strings"
)

// Directives is the result of scanning a SQL file's comments for the
// `-- depends: ...` and `-- transactional: ...` grammar from §6.
type Directives struct {
	DependsOn         map[string]struct{}
	Transactional     bool
	TransactionalSeen bool
}

var directivePrefixes = map[string]func(*Directives, string){
	"depends": func(d *Directives, v string) {
		for _, id := range strings.Fields(v) {
			d.DependsOn[id] = struct{}{}
		}
	},
	"transactional": func(d *Directives, v string) {
		d.TransactionalSeen = true
		d.Transactional = !strings.EqualFold(strings.TrimSpace(v), "false")
	},
}

// stripDirectiveComments removes `-- depends:` / `-- transactional:`
// comment lines from a statement's text, matching the original
// implementation's parse_metadata_from_sql_comments, which strips these
// lines out of the leading statement rather than leaving them embedded
// in the apply payload.
func stripDirectiveComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if isDirectiveLine(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func isDirectiveLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "--") {
		return false
	}
	body := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "--")))
	for name := range directivePrefixes {
		if strings.HasPrefix(body, name+":") {
			return true
		}
	}
	return false
}

// ParseDirectives scans every line of src for `-- depends: id1 id2 ...`
// and `-- transactional: (true|false)` comments, case-insensitively,
// matching anywhere in the file per §6's grammar.
func ParseDirectives(src string) *Directives {
	d := &Directives{
		DependsOn:     make(map[string]struct{}),
		Transactional: true,
	}

	scanner := bufio.NewScanner(strings.NewReader(src))
	scanner.Buffer(make([]byte, 1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "--") {
			continue
		}
		body := strings.TrimSpace(strings.TrimPrefix(line, "--"))
		for name, apply := range directivePrefixes {
			lower := strings.ToLower(body)
			prefix := name + ":"
			if strings.HasPrefix(lower, prefix) {
				apply(d, body[len(prefix):])
			}
		}
	}
	return d
}
