package loader

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"trialrag/internal/domain"
)

// maxHeaderLen bounds the length of a plain-text line treated as a section header.
const maxHeaderLen = 100

// LoadNarrative reads a Markdown, plain text or Word label document into
// sections. Word tables contribute one section per data row.
func LoadNarrative(path string) ([]domain.Section, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt", "":
	case ".docx":
		paragraphs, tables, err := readDocx(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		sections, err := parseDocx(filepath.Base(path), paragraphs, tables)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return sections, nil
	default:
		return nil, fmt.Errorf("unsupported narrative format %q", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	sections, err := ParseSections(filepath.Base(path), string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return sections, nil
}

// ParseSections splits narrative text on structural headers. Text before the
// first header becomes a section titled after the source. Sections whose body
// is blank are dropped.
func ParseSections(source, content string) ([]domain.Section, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("narrative source is empty")
	}

	var (
		sections []domain.Section
		title    = source
		body     strings.Builder
	)
	flush := func() {
		if text := strings.TrimSpace(body.String()); text != "" {
			sections = append(sections, domain.Section{Source: source, Title: title, Body: text})
		}
		body.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if h, ok := headerTitle(line); ok {
			flush()
			title = h
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	if len(sections) == 0 {
		return nil, errors.New("narrative source has no section bodies")
	}
	return sections, nil
}

// headerTitle reports whether line is a section header and returns its title.
func headerTitle(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}
	if strings.HasPrefix(trimmed, "#") {
		t := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		return t, t != ""
	}
	if len(trimmed) >= maxHeaderLen {
		return "", false
	}
	if strings.HasSuffix(trimmed, ":") {
		return strings.TrimSpace(strings.TrimSuffix(trimmed, ":")), true
	}
	if isAllCaps(trimmed) {
		return trimmed, true
	}
	return "", false
}

func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}
