package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/terraconstructs/svcgate/pkg/sdk"
)

const (
	cacheDir       = ".svcgate"
	credentialFile = "token-cache.json"
)

// FileStore implements sdk.CredentialStore using a JSON file.
type FileStore struct {
	fs     afero.Fs
	path   string
	logger *slog.Logger
}

// Ensure FileStore implements sdk.CredentialStore at compile time.
var _ sdk.CredentialStore = (*FileStore)(nil)

// DefaultPath returns the per-user cache location, ~/.svcgate/token-cache.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, cacheDir, credentialFile), nil
}

// NewFileStore creates a store at path on fs. A nil fs selects the OS
// filesystem. The containing directory is created on first save.
func NewFileStore(fs afero.Fs, path string, logger *slog.Logger) *FileStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FileStore{fs: fs, path: path, logger: logger}
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// SaveCredentials replaces the cache file with credentials. The write goes
// to a sibling temp file first so a reader never sees a half-written record.
func (s *FileStore) SaveCredentials(credentials *sdk.CachedCredential) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	data, err := json.MarshalIndent(credentials, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}

// LoadCredentials loads the credentials from the file. A file that exists
// but does not parse is deleted and reported as sdk.ErrCacheMiss.
func (s *FileStore) LoadCredentials() (*sdk.CachedCredential, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, sdk.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	var creds sdk.CachedCredential
	if err := json.Unmarshal(data, &creds); err != nil {
		s.logger.Warn("discarding corrupted credential cache", "path", s.path, "error", err)
		s.DeleteCredentials()
		return nil, sdk.ErrCacheMiss
	}
	return &creds, nil
}

// DeleteCredentials deletes the credentials file. Missing files are fine;
// other failures are logged.
func (s *FileStore) DeleteCredentials() {
	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to delete credential cache", "path", s.path, "error", err)
	}
}
