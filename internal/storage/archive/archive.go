// Package archive is the content store: it deduplicates reference images by
// content hash and files generated outputs into a date-partitioned tree.
package archive

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// ThumbnailSize is the bounding box for derived thumbnails (400px covers
// Retina grid cells).
const ThumbnailSize = 400

type Store struct {
	root   string
	logger *slog.Logger
}

func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger}
}

func (s *Store) Root() string { return s.root }

// GenerationsDir is the root of the date-partitioned output tree.
func (s *Store) GenerationsDir() string { return filepath.Join(s.root, "generations") }

// ReferencesDir holds hash-named reference images.
func (s *Store) ReferencesDir() string { return filepath.Join(s.root, "references") }

func (s *Store) DateDir(date string) string { return filepath.Join(s.GenerationsDir(), date) }

// EnsureDirs creates the archive directory tree.
func (s *Store) EnsureDirs() error {
	for _, dir := range []string{s.GenerationsDir(), s.ReferencesDir()} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create archive directory %s: %w", dir, err)
		}
	}
	return nil
}

// SavedImage describes an archived output asset.
type SavedImage struct {
	Path      string
	ThumbPath *string
	Width     int64
	Height    int64
	FileSize  int64
}

// SaveImage archives generated image bytes under generations/<date>/ with a
// <slug>-<HHMMSS>[-<counter>].<ext> name. Decode failure is a hard error and
// nothing is written; thumbnail failure degrades to a nil thumb path.
func (s *Store) SaveImage(data []byte, date, slug, timestamp string) (*SavedImage, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	dir := s.DateDir(date)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create date directory: %w", err)
	}

	ext := sniffExtension(data)
	stem := fmt.Sprintf("%s-%s", slug, timePart(timestamp))
	imagePath := filepath.Join(dir, stem+"."+ext)

	// Same slug and second-granularity time must not collide.
	for counter := 1; fileExists(imagePath); counter++ {
		imagePath = filepath.Join(dir, fmt.Sprintf("%s-%d.%s", stem, counter, ext))
	}

	if err := writeFileAtomic(imagePath, data); err != nil {
		return nil, fmt.Errorf("failed to write image file: %w", err)
	}

	bounds := img.Bounds()
	saved := &SavedImage{
		Path:     imagePath,
		Width:    int64(bounds.Dx()),
		Height:   int64(bounds.Dy()),
		FileSize: int64(len(data)),
	}

	thumbPath := thumbPathFor(imagePath)
	thumb := imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos)
	if err := imaging.Save(thumb, thumbPath, imaging.JPEGQuality(85)); err != nil {
		s.logger.Warn("failed to save thumbnail", "path", thumbPath, "error", err)
	} else {
		saved.ThumbPath = &thumbPath
	}

	return saved, nil
}

// StoreReference copies a reference image into references/<hash>.<ext>,
// deduplicating by content hash. Idempotent: identical content yields the
// same (hash, path) with no second copy.
func (s *Store) StoreReference(sourcePath string) (hash, storedPath string, err error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to read reference image: %w", err)
	}
	hash = HashBytes(data)

	ext := strings.TrimPrefix(filepath.Ext(sourcePath), ".")
	if ext == "" {
		ext = "png"
	}
	storedPath = filepath.Join(s.ReferencesDir(), hash+"."+ext)

	if !fileExists(storedPath) {
		if err := os.MkdirAll(s.ReferencesDir(), 0750); err != nil {
			return "", "", fmt.Errorf("failed to create references directory: %w", err)
		}
		if err := writeFileAtomic(storedPath, data); err != nil {
			return "", "", fmt.Errorf("failed to copy reference image: %w", err)
		}
	}

	return hash, storedPath, nil
}

// DeleteImage removes an archived image and its thumbnail. A missing
// thumbnail is not an error.
func (s *Store) DeleteImage(imagePath string) error {
	if fileExists(imagePath) {
		if err := os.Remove(imagePath); err != nil {
			return fmt.Errorf("failed to delete image: %w", err)
		}
	}
	if thumb := thumbPathFor(imagePath); fileExists(thumb) {
		_ = os.Remove(thumb)
	}
	return nil
}

// CopyTo copies an archived asset to an arbitrary destination.
func (s *Store) CopyTo(source, dest string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create destination directory: %w", err)
		}
	}
	if err := os.WriteFile(dest, data, 0640); err != nil {
		return fmt.Errorf("failed to copy image: %w", err)
	}
	return nil
}

// HashBytes returns the hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the hex SHA-256 digest of a file's contents.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file for hashing: %w", err)
	}
	return HashBytes(data), nil
}

// SlugifyPrompt derives a filename slug from the first five words of a
// prompt, capped at 40 characters.
func SlugifyPrompt(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > 5 {
		words = words[:5]
	}

	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.Join(words, " ")) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	if slug == "" {
		return "image"
	}
	return slug
}

func thumbPathFor(imagePath string) string {
	ext := filepath.Ext(imagePath)
	stem := strings.TrimSuffix(filepath.Base(imagePath), ext)
	return filepath.Join(filepath.Dir(imagePath), stem+".thumb.jpg")
}

// timePart extracts HHMMSS from an ISO timestamp.
func timePart(timestamp string) string {
	_, t, found := strings.Cut(timestamp, "T")
	if !found {
		return "000000"
	}
	t = strings.ReplaceAll(t, ":", "")
	if len(t) > 6 {
		t = t[:6]
	}
	return t
}

func sniffExtension(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpg"
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp"
	default:
		return "png"
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
