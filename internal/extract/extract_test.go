package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"knowledge-platform/models"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Refund Policy</title><style>body { color: red }</style></head>
<body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<main>
<h1>Refund Policy</h1>
<p>Refunds are issued within thirty days of purchase when the product is returned unused.</p>
<p>Contact support with your order number to start a refund.</p>
</main>
<script>console.log("tracking")</script>
<footer>Copyright 2026</footer>
</body>
</html>`

func TestParseHTMLExtractsContent(t *testing.T) {
	title, text, err := ParseHTML(strings.NewReader(samplePage))
	if err != nil {
		t.Fatal(err)
	}
	if title != "Refund Policy" {
		t.Fatalf("unexpected title: %q", title)
	}
	if !strings.Contains(text, "thirty days of purchase") {
		t.Fatalf("body content lost: %q", text)
	}
	if strings.Contains(text, "console.log") || strings.Contains(text, "color: red") {
		t.Fatalf("script or style leaked into text: %q", text)
	}
	if strings.Contains(text, "Home") {
		t.Fatalf("navigation leaked into text: %q", text)
	}
	if !strings.Contains(text, "\n\n") {
		t.Fatal("paragraph boundaries lost")
	}
}

func TestParseHTMLEmptyDocument(t *testing.T) {
	_, text, err := ParseHTML(strings.NewReader("<html><body></body></html>"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(text) != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
}

func TestFileExtractorWalksDropDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("plain text notes about the platform"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "page.html"), []byte(samplePage), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.bin"), []byte{0x00, 0x01}, 0o644); err != nil {
		t.Fatal(err)
	}

	source := &models.Source{Name: "drop", Type: models.SourceTypeFileDrop, URI: dir}
	docs, err := NewFileExtractor().Extract(context.Background(), source)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	for _, doc := range docs {
		if doc.Text == "" {
			t.Fatalf("document %q has no text", doc.Title)
		}
		if doc.PublishedAt == nil {
			t.Fatalf("document %q missing modification time", doc.Title)
		}
	}
}

func TestFileExtractorRejectsMissingDirectory(t *testing.T) {
	source := &models.Source{Name: "gone", Type: models.SourceTypeFileDrop, URI: "/does/not/exist"}
	if _, err := NewFileExtractor().Extract(context.Background(), source); err == nil {
		t.Fatal("missing drop directory should fail extraction")
	}
}

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry()
	reg.Register(models.SourceTypeFileDrop, NewFileExtractor())

	if _, err := reg.For(&models.Source{Type: models.SourceTypeFileDrop}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.For(&models.Source{Type: "unknown"}); err == nil {
		t.Fatal("unknown source type should fail")
	}
}
