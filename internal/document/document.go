// Package document extracts plain text from the reference document.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Document is the extracted text of the reference file, one entry per page.
// Formats without pages produce a single page.
type Document struct {
	Path    string
	Name    string
	Pages   []string
	Size    int64
	ModTime time.Time
}

// Chars returns the total number of bytes of extracted text.
func (d *Document) Chars() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p)
	}
	return n
}

type extractor func(path string) ([]string, error)

// extractorFor picks the extraction routine by file extension.
func extractorFor(path string) (extractor, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return extractPDF, nil
	case ".md", ".markdown":
		return extractMarkdown, nil
	case ".txt", ".text":
		return extractText, nil
	default:
		return nil, fmt.Errorf("unsupported document format %q (want .pdf, .md or .txt)", ext)
	}
}

// Load reads the file at path and extracts its text.
func Load(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reference document: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("reference document %s is a directory", path)
	}

	extract, err := extractorFor(path)
	if err != nil {
		return nil, err
	}
	pages, err := extract(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}

	return &Document{
		Path:    path,
		Name:    filepath.Base(path),
		Pages:   pages,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

func extractText(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []string{strings.ToValidUTF8(string(b), "")}, nil
}
