// Package brain manages the on-disk layout of a knowledge base: a folder of
// extracted markdown files plus a meta/ directory owned by the claim ledger.
package brain

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNotFound is returned when a knowledge base or one of its files does not exist
var ErrNotFound = errors.New("not found")

// MetaDir holds ledger state and is never treated as knowledge content
const MetaDir = "meta"

// UserNotesDir is the user-editable area; claims from it outrank model-derived ones
const UserNotesDir = "notes"

// DefaultExcludes are skipped when listing knowledge files
var DefaultExcludes = []string{
	MetaDir + "/**",
	"**/*.tmp",
	"**/.*",
}

// standardDirs are created by Initialize
var standardDirs = []string{"characters", "timeline", "themes", "facts", UserNotesDir, MetaDir}

// Brain is one knowledge base folder
type Brain struct {
	name string
	root string
}

// New returns a handle for the knowledge base called name under baseDir.
// It does not touch the filesystem.
func New(baseDir, name string) (*Brain, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return &Brain{
		name: name,
		root: filepath.Join(baseDir, name),
	}, nil
}

// ValidateName rejects names that would escape the brains directory
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("brain name is empty")
	}
	if trimmed != name || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid brain name %q", name)
	}
	return nil
}

// Name returns the knowledge base name
func (b *Brain) Name() string { return b.name }

// Path returns the knowledge base root directory
func (b *Brain) Path() string { return b.root }

// Exists reports whether the knowledge base folder is present
func (b *Brain) Exists() bool {
	info, err := os.Stat(b.root)
	return err == nil && info.IsDir()
}

// Abs resolves a knowledge-base-relative path, refusing paths that escape the root.
func (b *Brain) Abs(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes brain %s", relPath, b.name)
	}
	return filepath.Join(b.root, clean), nil
}

// ReadFile returns the content of a knowledge-base-relative file
func (b *Brain) ReadFile(relPath string) (string, error) {
	abs, err := b.Abs(relPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s/%s: %w", b.name, relPath, ErrNotFound)
		}
		return "", fmt.Errorf("read %s: %w", relPath, err)
	}
	return string(data), nil
}

// WriteFile replaces a knowledge-base-relative file atomically (write .tmp, then rename).
func (b *Brain) WriteFile(relPath, content string) error {
	abs, err := b.Abs(relPath)
	if err != nil {
		return err
	}
	return WriteAtomic(abs, []byte(content))
}

// WriteAtomic writes data to a temporary sibling and renames it over path,
// so readers observe either the old or the new document, never a partial one.
func WriteAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp := fmt.Sprintf("%s.%d.tmp", path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ListFiles returns all knowledge files as sorted slash-separated relative
// paths, skipping anything matched by DefaultExcludes or extra.
func (b *Brain) ListFiles(extra ...string) ([]string, error) {
	if !b.Exists() {
		return nil, fmt.Errorf("brain %s: %w", b.name, ErrNotFound)
	}
	excludes := append(append([]string{}, DefaultExcludes...), extra...)

	var files []string
	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if Excluded(rel, excludes) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", b.name, err)
	}
	sort.Strings(files)
	return files, nil
}

// Excluded reports whether rel matches any of the glob patterns
func Excluded(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// IsUserArea reports whether a file lives in the user-editable notes area
func IsUserArea(relPath string) bool {
	return strings.HasPrefix(filepath.ToSlash(relPath), UserNotesDir+"/")
}

// Initialize creates the standard folder layout and objective/response files.
func (b *Brain) Initialize(objective string) error {
	for _, dir := range standardDirs {
		if err := os.MkdirAll(filepath.Join(b.root, dir), 0o755); err != nil {
			return fmt.Errorf("initialize %s: %w", b.name, err)
		}
	}
	files := map[string]string{
		"_objective.md": "# Objective\n\n" + objective + "\n",
		"_response.md":  "# Response\n\n*Processing not yet started.*\n",
	}
	for rel, content := range files {
		if err := b.WriteFile(rel, content); err != nil {
			return fmt.Errorf("initialize %s: %w", b.name, err)
		}
	}
	return nil
}

// Objective returns the objective text without its heading
func (b *Brain) Objective() string {
	content, err := b.ReadFile("_objective.md")
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) <= 2 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[2:], "\n"))
}

// Response returns the current response to the objective
func (b *Brain) Response() string {
	content, _ := b.ReadFile("_response.md")
	return content
}
