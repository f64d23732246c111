package ingestion

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store keeps uploaded audio files under the data directory until their job
// is deleted.
type Store struct {
	dataDir string
}

// NewStore creates an upload store rooted at dataDir.
func NewStore(dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "input")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create input directory: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

// SaveUpload writes an uploaded file to disk under a collision-free name and
// returns its path, usable as a job input reference.
func (s *Store) SaveUpload(filename string, r io.Reader) (string, error) {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)
	if base == "" {
		base = "upload"
	}
	// 同名ファイルの衝突を避けるためUUID断片を付与
	name := fmt.Sprintf("%s_%s%s", base, uuid.New().String()[:8], ext)
	dest := filepath.Join(s.dataDir, "input", name)

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return dest, nil
}

// Remove deletes a stored upload. References outside the store (remote URLs,
// caller-owned paths) are left alone.
func (s *Store) Remove(ref string) error {
	prefix := filepath.Join(s.dataDir, "input") + string(os.PathSeparator)
	if !strings.HasPrefix(ref, prefix) {
		return nil
	}
	if err := os.Remove(ref); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
