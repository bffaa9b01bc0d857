package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxFileSizeForEmbedding is the maximum file size that can be reliably
// embedded. Larger files would have content truncated during embedding,
// causing retrieval failures for text beyond the limit.
const MaxFileSizeForEmbedding = 8 * 1024

var supportedImportExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
}

// ImportResult summarizes a directory import.
type ImportResult struct {
	FilesAdded   int
	FilesSkipped int
	FilesFailed  int
	TotalSize    int64
	Duration     time.Duration
}

// jsonDocument is the on-disk shape accepted for .json imports.
type jsonDocument struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// Importer loads knowledge documents from local files into a store.
type Importer struct {
	store           *Store
	defaultCategory string
}

// NewImporter creates an importer. defaultCategory is applied to plain-text
// files, which carry no category of their own.
func NewImporter(store *Store, defaultCategory string) *Importer {
	return &Importer{store: store, defaultCategory: defaultCategory}
}

// ImportFile loads a single .txt, .md, or .json file as a document.
func (imp *Importer) ImportFile(ctx context.Context, filePath string) (Document, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return Document{}, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return Document{}, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return Document{}, fmt.Errorf("path %s is a directory, use ImportDirectory instead", filePath)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if !supportedImportExtensions[ext] {
		return Document{}, fmt.Errorf("unsupported file type %q", ext)
	}
	if info.Size() > MaxFileSizeForEmbedding {
		return Document{}, fmt.Errorf("file %s (%d bytes) exceeds embedding limit (%d bytes); split it into smaller files",
			filePath, info.Size(), MaxFileSizeForEmbedding)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return Document{}, fmt.Errorf("reading file: %w", err)
	}

	doc, err := imp.documentFromFile(absPath, ext, content)
	if err != nil {
		return Document{}, err
	}
	return imp.store.Put(ctx, doc)
}

// ImportDirectory walks dirPath and imports every supported file. Unsupported
// and oversized files are skipped; a file that fails to parse or embed counts
// as failed without aborting the walk.
func (imp *Importer) ImportDirectory(ctx context.Context, dirPath string) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{}

	absDirPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving directory path: %w", err)
	}

	// os.Root confines reads to the import directory so symlinks cannot
	// escape it.
	root, err := os.OpenRoot(absDirPath)
	if err != nil {
		return nil, fmt.Errorf("opening import directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	if err := filepath.Walk(absDirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result.FilesFailed++
			return nil
		}
		if info.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !supportedImportExtensions[ext] {
			result.FilesSkipped++
			return nil
		}
		if info.Size() > MaxFileSizeForEmbedding {
			result.FilesSkipped++
			return nil
		}

		relPath, err := filepath.Rel(absDirPath, path)
		if err != nil {
			result.FilesFailed++
			return nil
		}
		content, err := root.ReadFile(relPath)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		doc, err := imp.documentFromFile(path, ext, content)
		if err != nil {
			result.FilesFailed++
			return nil
		}
		if _, err := imp.store.Put(ctx, doc); err != nil {
			result.FilesFailed++
			return nil
		}

		result.FilesAdded++
		result.TotalSize += info.Size()
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walking import directory: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (imp *Importer) documentFromFile(absPath, ext string, content []byte) (Document, error) {
	if ext == ".json" {
		var jd jsonDocument
		if err := json.Unmarshal(content, &jd); err != nil {
			return Document{}, fmt.Errorf("parsing %s: %w", absPath, err)
		}
		category := jd.Category
		if category == "" {
			category = imp.defaultCategory
		}
		return Document{
			ID:       fileDocID(absPath),
			Title:    jd.Title,
			Body:     jd.Body,
			Category: category,
			Tags:     jd.Tags,
		}, nil
	}

	title := strings.TrimSuffix(filepath.Base(absPath), ext)
	return Document{
		ID:       fileDocID(absPath),
		Title:    title,
		Body:     string(content),
		Category: imp.defaultCategory,
	}, nil
}

// fileDocID derives a stable document ID from the file path, so re-importing
// the same file updates its document instead of duplicating it.
func fileDocID(absPath string) string {
	hash := sha256.Sum256([]byte(absPath))
	return fmt.Sprintf("file:%x", hash[:16])
}
