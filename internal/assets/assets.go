// Package assets holds the resource files the engine falls back to when the
// configured asset directory does not provide them.
package assets

import (
	"embed"
	"io/fs"
	"os"

	"github.com/embedview/embedview/internal/bridge"
)

//go:embed static
var static embed.FS

// Defaults returns the packaged resources rooted at the file names the
// engine asks for.
func Defaults() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Store layers dir, when set, over the packaged defaults.
func Store(dir string) bridge.AssetStore {
	defaults := bridge.FSStore{FS: Defaults()}
	if dir == "" {
		return defaults
	}
	return bridge.LayeredStore{bridge.FSStore{FS: os.DirFS(dir)}, defaults}
}
