// Package intake stores uploaded statements in transient files. Every successful
// Save must be paired with a Release once the request is finished.
package intake

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finsight/internal/models"
)

var (
	ErrUnsupportedType = errors.New("only PDF files are supported")
	ErrTooLarge        = errors.New("file too large")
	ErrEmpty           = errors.New("file is empty")
)

const (
	DefaultMaxBytes = 10 << 20 // 10 MB
	fileExt         = ".pdf"
	sniffLen        = 512
)

// Store writes uploads under a single transient directory.
type Store struct {
	dir      string
	maxBytes int64
	logger   *zap.Logger
}

// NewStore creates dir if needed.
func NewStore(dir string, maxBytes int64, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("upload dir required")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

// Dir returns the transient directory.
func (s *Store) Dir() string {
	return s.dir
}

// MaxBytes returns the per-file limit.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Save persists r to a uniquely named file. Only the extension is checked; malformed
// PDFs are left for the extractor to reject.
func (s *Store) Save(name string, r io.Reader) (*models.Upload, error) {
	filename := filepath.Base(strings.TrimSpace(name))
	if !strings.EqualFold(filepath.Ext(filename), fileExt) {
		return nil, ErrUnsupportedType
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, id+fileExt)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create transient file: %w", err)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		s.discard(f, path)
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	written, err := io.Copy(f, io.LimitReader(io.MultiReader(bytes.NewReader(head), r), s.maxBytes+1))
	if err != nil {
		s.discard(f, path)
		return nil, fmt.Errorf("write transient file: %w", err)
	}
	if written > s.maxBytes {
		s.discard(f, path)
		return nil, ErrTooLarge
	}
	if written == 0 {
		s.discard(f, path)
		return nil, ErrEmpty
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close transient file: %w", err)
	}

	upload := &models.Upload{
		ID:         id,
		FileName:   filename,
		StoredPath: path,
		MimeType:   http.DetectContentType(head),
		Size:       written,
		CreatedAt:  time.Now().UTC(),
	}
	s.logger.Debug("upload stored",
		zap.String("upload_id", upload.ID),
		zap.String("file_name", upload.FileName),
		zap.String("mime", upload.MimeType),
		zap.Int64("size", upload.Size))
	return upload, nil
}

// Release removes the transient file. A file that is already gone is not an error.
func (s *Store) Release(upload *models.Upload) error {
	if upload == nil || upload.StoredPath == "" {
		return nil
	}
	if err := os.Remove(upload.StoredPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove transient file: %w", err)
	}
	s.logger.Debug("upload released", zap.String("upload_id", upload.ID))
	return nil
}

func (s *Store) discard(f *os.File, path string) {
	_ = f.Close()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("remove rejected upload failed", zap.String("path", path), zap.Error(err))
	}
}
