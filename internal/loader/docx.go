package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"

	"trialrag/internal/domain"
)

// readDocx returns the non-empty paragraph texts and the cell texts of every
// table in body order.
func readDocx(path string) ([]string, [][][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, nil, err
	}

	var (
		paragraphs []string
		tables     [][][]string
	)
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			if text := strings.TrimSpace(it.String()); text != "" {
				paragraphs = append(paragraphs, text)
			}
		case *docx.Table:
			var rows [][]string
			for _, r := range it.TableRows {
				row := make([]string, 0, len(r.TableCells))
				for _, c := range r.TableCells {
					var parts []string
					for _, p := range c.Paragraphs {
						if text := strings.TrimSpace(p.String()); text != "" {
							parts = append(parts, text)
						}
					}
					row = append(row, strings.Join(parts, " "))
				}
				rows = append(rows, row)
			}
			tables = append(tables, rows)
		}
	}
	return paragraphs, tables, nil
}

// parseDocx applies the header rules to the document paragraphs and adds one
// section per table data row.
func parseDocx(source string, paragraphs []string, tables [][][]string) ([]domain.Section, error) {
	var sections []domain.Section
	if len(paragraphs) > 0 {
		secs, err := ParseSections(source, strings.Join(paragraphs, "\n\n"))
		if err != nil && len(tables) == 0 {
			return nil, err
		}
		sections = append(sections, secs...)
	}
	sections = append(sections, TableSections(source, tables)...)
	if len(sections) == 0 {
		return nil, fmt.Errorf("narrative source has no section bodies")
	}
	return sections, nil
}

// TableSections turns each data row of a document table into a section whose
// body pairs header cells with row cells, e.g. "Drug: Imatinib | Caution: Edema".
// The first row of a table is its header; rows with no text are skipped.
func TableSections(source string, tables [][][]string) []domain.Section {
	var out []domain.Section
	for ti, rows := range tables {
		if len(rows) < 2 {
			continue
		}
		header := rows[0]
		for ri, row := range rows[1:] {
			var parts []string
			for ci, cell := range row {
				cell = strings.TrimSpace(cell)
				if cell == "" {
					continue
				}
				if ci < len(header) && strings.TrimSpace(header[ci]) != "" {
					cell = strings.TrimSpace(header[ci]) + ": " + cell
				}
				parts = append(parts, cell)
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, domain.Section{
				Source: source,
				Title:  fmt.Sprintf("%s table %d row %d", source, ti+1, ri+1),
				Body:   strings.Join(parts, " | "),
			})
		}
	}
	return out
}
