package resource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xiaot623/gogo/apm/internal/domain"
)

// ErrUnsupportedStorage is returned for storage types a loader cannot read.
var ErrUnsupportedStorage = errors.New("unsupported storage type")

// maxChunk bounds the size of a single document.
const maxChunk = 4000

// DocumentLoader turns a stored resource into documents.
type DocumentLoader interface {
	Load(ctx context.Context, r domain.Resource) ([]domain.Document, error)
}

// FileLoader reads FILE resources from the local disk. Relative paths are
// resolved against Root.
type FileLoader struct {
	Root string
}

// Save writes uploaded content under Root/<agentID>/<name> and returns the
// path relative to Root.
func (l FileLoader) Save(agentID int64, name string, content []byte) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", fmt.Errorf("invalid resource name %q", name)
	}
	rel := filepath.Join(strconv.FormatInt(agentID, 10), base)
	path := filepath.Join(l.Root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create resource dir: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write resource: %w", err)
	}
	return rel, nil
}

// Load reads the resource and splits it into paragraph-aligned chunks.
func (l FileLoader) Load(ctx context.Context, r domain.Resource) ([]domain.Document, error) {
	if r.StorageType != domain.StorageTypeFile && r.StorageType != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStorage, r.StorageType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := r.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.Root, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource %d: %w", r.ID, err)
	}

	chunks := Chunk(string(content), maxChunk)
	docs := make([]domain.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = domain.Document{
			Text:     c,
			Metadata: map[string]string{"file_name": r.Name, "chunk": fmt.Sprint(i)},
		}
	}
	return docs, nil
}

// Chunk splits text on blank lines and packs paragraphs into chunks of at
// most size bytes. Paragraphs longer than size are cut.
func Chunk(text string, size int) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for len(para) > size {
			flush()
			chunks = append(chunks, para[:size])
			para = para[size:]
		}
		if cur.Len() > 0 && cur.Len()+2+len(para) > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return chunks
}
