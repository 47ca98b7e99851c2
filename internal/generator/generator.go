// Package generator produces the synthetic files a demo run uploads.
package generator

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/chmdznr/minio-audit-demo/internal/storage"
	"github.com/chmdznr/minio-audit-demo/pkg/models"
	"golang.org/x/crypto/blake2b"
)

var extensions = []string{".txt", ".md", ".log", ".csv", ".json"}

// Options bounds what the generator produces. Both ranges are inclusive.
type Options struct {
	Dir      string
	MinFiles int
	MaxFiles int
	MinSize  int64
	MaxSize  int64
	// Seed makes output reproducible; 0 seeds from crypto/rand
	Seed int64
}

// DefaultOptions returns 1-5 files of 1,000-50,000 bytes in dir
func DefaultOptions(dir string) Options {
	return Options{
		Dir:      dir,
		MinFiles: 1,
		MaxFiles: 5,
		MinSize:  1000,
		MaxSize:  50000,
	}
}

type Generator struct {
	opts  Options
	faker *gofakeit.Faker
	used  map[string]bool
}

func New(opts Options) *Generator {
	return &Generator{
		opts:  opts,
		faker: gofakeit.New(opts.Seed),
		used:  make(map[string]bool),
	}
}

// Count draws the number of files for a run
func (g *Generator) Count() int {
	return g.faker.Number(g.opts.MinFiles, g.opts.MaxFiles)
}

// Generate writes n files into the scratch directory. A write failure
// stops generation and returns the files written so far with the error.
func (g *Generator) Generate(n int) ([]models.SyntheticFile, error) {
	if err := os.MkdirAll(g.opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", g.opts.Dir, err)
	}

	files := make([]models.SyntheticFile, 0, n)
	for i := 0; i < n; i++ {
		file, err := g.generateOne()
		if err != nil {
			return files, err
		}
		files = append(files, file)
	}
	return files, nil
}

func (g *Generator) generateOne() (models.SyntheticFile, error) {
	size := int64(g.faker.Number(int(g.opts.MinSize), int(g.opts.MaxSize)))
	name := g.fileName()
	content := g.body(size)

	filePath := filepath.Join(g.opts.Dir, name)
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return models.SyntheticFile{}, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}

	return models.SyntheticFile{
		Name:      name,
		LocalPath: filePath,
		Size:      int64(len(content)),
		Digest:    Digest(content),
	}, nil
}

// fileName returns a word plus extension, unique within this generator
func (g *Generator) fileName() string {
	ext := extensions[g.faker.Number(0, len(extensions)-1)]
	base := storage.SanitizeKey(strings.ToLower(g.faker.Word()))
	if base == "" {
		base = "file"
	}

	name := base + ext
	for i := 2; g.used[name]; i++ {
		name = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
	g.used[name] = true
	return name
}

// body fills exactly size bytes with fake prose
func (g *Generator) body(size int64) []byte {
	var sb strings.Builder
	sb.Grow(int(size))
	for int64(sb.Len()) < size {
		sb.WriteString(g.faker.Paragraph(1, 5, 10, " "))
		sb.WriteString("\n\n")
	}
	return []byte(sb.String()[:size])
}

// Digest returns the hex blake2b-256 of data
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestFile hashes the file at path and returns the digest and size
func DigestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
