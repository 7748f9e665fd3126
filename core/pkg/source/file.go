package source

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/togglecache/togglecache/core/pkg/logger"
	"github.com/togglecache/togglecache/core/pkg/store"
)

// FileTransport serves a manifest from a local JSON file. The fingerprint
// is the SHA-256 of the file content.
type FileTransport struct {
	URI    string
	Logger log.FieldLogger
}

func NewFileTransport(uri string, l log.FieldLogger) *FileTransport {
	return &FileTransport{URI: uri, Logger: logger.WithComponent(l, "file-source")}
}

func (fp *FileTransport) read() ([]byte, []byte, error) {
	if fp.URI == "" {
		return nil, nil, errors.New("no filepath string set")
	}
	raw, err := os.ReadFile(fp.URI)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, fp.URI)
	}
	if err != nil {
		return nil, nil, err
	}
	sum := sha256.Sum256(raw)
	return raw, sum[:], nil
}

func (fp *FileTransport) Check(context.Context) ([]byte, error) {
	_, sum, err := fp.read()
	return sum, err
}

func (fp *FileTransport) Fetch(context.Context) (*store.Snapshot, error) {
	raw, sum, err := fp.read()
	if err != nil {
		return nil, err
	}
	return DecodeManifest(raw, sum)
}

// Watch calls onChange whenever the manifest file is written, created or
// replaced. It blocks until ctx is done. The parent directory is watched so
// editors that replace the file by rename are picked up.
func (fp *FileTransport) Watch(ctx context.Context, onChange func()) error {
	if fp.Logger == nil {
		fp.Logger = logger.WithComponent(nil, "file-source")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create file watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(fp.URI)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("unable to watch %s: %w", fp.URI, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				fp.Logger.WithField("op", event.Op.String()).Debug("manifest file changed")
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fp.Logger.WithError(err).Error("file watcher error")
		}
	}
}
