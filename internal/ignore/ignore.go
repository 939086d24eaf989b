// Package ignore reads gitignore-style files that exclude files from
// directory ingestion.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFiles are the ignore files read from a watched directory.
var DefaultFiles = []string{".ragignore", ".gitignore"}

// Matcher reports whether a file name is excluded.
type Matcher struct {
	patterns []string
}

// Load reads every ignore file in names from dir. Missing files are
// skipped; an empty Matcher excludes only hidden files.
func Load(dir string, names ...string) (*Matcher, error) {
	if len(names) == 0 {
		names = DefaultFiles
	}

	var patterns []string
	for _, name := range names {
		filePatterns, err := parseFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
	}
	return &Matcher{patterns: deduplicate(patterns)}, nil
}

// New returns a Matcher for already parsed patterns.
func New(patterns ...string) *Matcher {
	parsed := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = parseLine(p); p != "" {
			parsed = append(parsed, p)
		}
	}
	return &Matcher{patterns: deduplicate(parsed)}
}

// Patterns returns the effective patterns, in file order.
func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// Match reports whether the base name of path is excluded. Hidden files
// and editor swap files are always excluded.
func (m *Matcher) Match(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return true
	}
	for _, p := range m.patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pattern := parseLine(scanner.Text()); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// parseLine returns the name pattern of one ignore-file line, or "" for
// blank lines, comments, negations and directory-only patterns. Watched
// directories are flat, so a leading "/" or "**/" is dropped.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t\r")
	switch {
	case line == "", strings.HasPrefix(line, "#"), strings.HasPrefix(line, "!"):
		return ""
	case strings.HasSuffix(line, "/"):
		return ""
	}

	line = strings.TrimPrefix(line, "/")
	line = strings.TrimPrefix(line, "**/")
	if strings.Contains(line, "/") {
		return ""
	}
	if _, err := filepath.Match(line, ""); err != nil {
		return ""
	}
	return line
}

// deduplicate removes duplicate patterns while preserving order.
func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}

	return result
}
