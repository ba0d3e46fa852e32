package memimg

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Sprite names looked up by the renderer; files are <name>.png or <name>.jpg.
const (
	Food   = "food"
	Poison = "poison"
	Fire   = "fire"
	Head   = "head"
	Body   = "body"
)

// Cache keeps sprites in memory, scaled to one grid cell.
type Cache struct {
	mu      sync.RWMutex
	images  map[string]image.Image
	cellPix int
}

func NewCache(cellPix int) *Cache {
	return &Cache{
		images:  make(map[string]image.Image),
		cellPix: cellPix,
	}
}

// LoadDir loads every image in directory. Unreadable files are skipped.
func (c *Cache) LoadDir(directory string) error {
	return filepath.Walk(directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isImage(path) {
			return nil
		}
		if err := c.load(path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("skip sprite")
		}
		return nil
	})
}

func isImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

func spriteName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (c *Cache) load(path string) error {
	img, err := loadImage(path)
	if err != nil {
		return err
	}
	// 缩放到一个格子大小，绘图时直接贴
	scaled := imaging.Resize(img, c.cellPix, c.cellPix, imaging.Lanczos)
	c.mu.Lock()
	c.images[spriteName(path)] = scaled
	c.mu.Unlock()
	return nil
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Watch reloads sprites written into directory and drops removed ones until ctx ends.
func (c *Cache) Watch(ctx context.Context, directory string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(directory); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isImage(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
				if err := c.load(event.Name); err != nil {
					// 文件可能还没写完，下一次 Write 事件会再读
					log.Debug().Err(err).Str("file", event.Name).Msg("sprite not ready")
					continue
				}
				log.Info().Str("sprite", spriteName(event.Name)).Msg("sprite reloaded")
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				c.mu.Lock()
				delete(c.images, spriteName(event.Name))
				c.mu.Unlock()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("sprite watcher")
		}
	}
}

// Get returns the sprite called name.
func (c *Cache) Get(name string) (image.Image, bool) {
	c.mu.RLock()
	img, exists := c.images[name]
	c.mu.RUnlock()
	return img, exists
}

// CellSize returns the sprite edge length in pixels.
func (c *Cache) CellSize() int {
	return c.cellPix
}
