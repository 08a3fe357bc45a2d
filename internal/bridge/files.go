package bridge

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"go.uber.org/zap"
)

// AssetStore reads named resources.
type AssetStore interface {
	Read(name string) ([]byte, error)
}

// FSStore serves assets from an fs.FS: a directory via os.DirFS, or the
// packaged defaults.
type FSStore struct {
	FS fs.FS
}

// Read returns the content of name. Names are slash separated and may not
// escape the root.
func (s FSStore) Read(name string) ([]byte, error) {
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	if !fs.ValidPath(clean) || clean == "." {
		return nil, fmt.Errorf("assets: invalid name %q: %w", name, fs.ErrInvalid)
	}
	return fs.ReadFile(s.FS, clean)
}

// LayeredStore consults each store in order and returns the first hit.
type LayeredStore []AssetStore

// Read implements AssetStore.
func (l LayeredStore) Read(name string) ([]byte, error) {
	var firstErr error
	for _, s := range l {
		if s == nil {
			continue
		}
		b, err := s.Read(name)
		if err == nil {
			return b, nil
		}
		if firstErr == nil || errors.Is(firstErr, fs.ErrNotExist) {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = fs.ErrNotExist
	}
	return nil, firstErr
}

// FileProvider implements engine.FileReader on top of an AssetStore. Reads
// that fail for any reason degrade to "not found".
type FileProvider struct {
	store  AssetStore
	logger *zap.Logger
}

// NewFileProvider wraps store.
func NewFileProvider(store AssetStore, logger *zap.Logger) *FileProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileProvider{store: store, logger: logger}
}

// ReadFile implements engine.FileReader.
func (p *FileProvider) ReadFile(name string) ([]byte, bool) {
	if p == nil || p.store == nil {
		return nil, false
	}
	b, err := p.store.Read(name)
	switch {
	case err == nil:
		return b, true
	case errors.Is(err, fs.ErrNotExist):
		p.logger.Debug("files: not found", zap.String("name", name))
	default:
		p.logger.Warn("files: read failed", zap.String("name", name), zap.Error(err))
	}
	return nil, false
}
