package extract

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/pipeline"
	"knowledge-platform/models"
)

// FileExtractor walks a drop directory and extracts every supported file.
// The source URI is the directory path.
type FileExtractor struct{}

func NewFileExtractor() *FileExtractor { return &FileExtractor{} }

func (e *FileExtractor) Extract(ctx context.Context, source *models.Source) ([]pipeline.RawDocument, error) {
	root := source.URI
	if root == "" {
		return nil, fmt.Errorf("source %s has no drop directory configured", source.Name)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("drop directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source uri %s is not a directory", root)
	}

	var docs []pipeline.RawDocument
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		doc, ok, err := e.extractFile(ctx, path, d)
		if err != nil {
			// One broken file must not block the rest of the drop.
			logger.Warn("Failed to extract file", "path", path, "error", err)
			return nil
		}
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk drop directory: %w", err)
	}
	return docs, nil
}

func (e *FileExtractor) extractFile(ctx context.Context, path string, d fs.DirEntry) (pipeline.RawDocument, bool, error) {
	var doc pipeline.RawDocument
	doc.URI = path
	doc.Title = strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))

	if info, err := d.Info(); err == nil {
		mod := info.ModTime()
		doc.PublishedAt = &mod
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, _, err := ParsePDF(ctx, path)
		if err != nil {
			return doc, false, err
		}
		doc.Text = text
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return doc, false, err
		}
		defer f.Close()
		title, text, err := ParseHTML(f)
		if err != nil {
			return doc, false, err
		}
		if title != "" {
			doc.Title = title
		}
		doc.Text = text
	case ".txt", ".md":
		raw, err := os.ReadFile(path)
		if err != nil {
			return doc, false, err
		}
		doc.Text = string(raw)
	default:
		return doc, false, nil
	}
	return doc, true, nil
}
