// Package filestore keeps uploaded bill documents on disk, addressed by the
// SHA-256 of their content. Re-uploading identical bytes reuses the stored
// file instead of writing a second copy.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atolldev/billscan/internal/config"
	"go.uber.org/zap"
)

// Stored describes a persisted document.
type Stored struct {
	Hash   string
	Path   string
	Size   int64
	Reused bool
}

type Store interface {
	Save(data []byte, ext string) (Stored, error)
	Read(path string) ([]byte, error)
	Remove(path string) error
}

type diskStore struct {
	dir string
	log *zap.Logger
}

func NewDiskStore(cfg config.Config, logger *zap.Logger) (Store, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create upload dir: %w", err)
	}
	return &diskStore{dir: cfg.UploadDir, log: logger.Named("providers.filestore")}, nil
}

// Hash returns the content address used for duplicate detection.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *diskStore) Save(data []byte, ext string) (Stored, error) {
	hash := Hash(data)
	if ext == "" {
		ext = ".pdf"
	}
	path := filepath.Join(s.dir, hash+ext)

	if info, err := os.Stat(path); err == nil {
		s.log.Debug("reusing stored document", zap.String("hash", hash))
		return Stored{Hash: hash, Path: path, Size: info.Size(), Reused: true}, nil
	}

	// Write through a temp file so a crash never leaves a truncated document
	// at the content address.
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Stored{}, fmt.Errorf("filestore: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return Stored{}, fmt.Errorf("filestore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return Stored{}, fmt.Errorf("filestore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return Stored{}, fmt.Errorf("filestore: rename: %w", err)
	}

	return Stored{Hash: hash, Path: path, Size: int64(len(data))}, nil
}

func (s *diskStore) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (s *diskStore) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
