package blob

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/siterag/siterag/pkg/logger"
	"github.com/siterag/siterag/pkg/utils"
)

// Store keeps raw fetched HTML on disk, one file per page, grouped by crawl
// session. Keys are relative paths of the form <session_id>/<md5(url)>.html.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}

	logger.Info("Blob store initialized", zap.String("root", root))

	return &Store{root: root}, nil
}

// Put writes the raw bytes for a URL under the given session and returns the
// key to store on the page record.
func (s *Store) Put(sessionID, url string, data []byte) (string, error) {
	key := filepath.Join(sessionID, utils.HashString(url)+".html")

	path := filepath.Join(s.root, key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create session dir: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	return key, nil
}

func (s *Store) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, key))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}
