package app

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// Sweeper deletes downloaded and generated media older than MaxAge. Published
// files are only needed until the publish is confirmed, so anything old is
// safe to remove.
type Sweeper struct {
	Dirs   []string
	MaxAge time.Duration
}

func NewSweeper(maxAge time.Duration, dirs ...string) *Sweeper {
	return &Sweeper{Dirs: dirs, MaxAge: maxAge}
}

// Sweep walks every configured directory and removes stale regular files.
// It never fails the caller; problems are logged per file.
func (s *Sweeper) Sweep() {
	cutoff := time.Now().Add(-s.MaxAge)
	var removed int
	for _, dir := range s.Dirs {
		if dir == "" {
			continue
		}
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(path); err != nil {
					log.Printf("cleanup: cannot remove %s: %v", path, err)
					return nil
				}
				removed++
			}
			return nil
		})
		if err != nil {
			log.Printf("cleanup: walking %s: %v", dir, err)
		}
	}
	if removed > 0 {
		log.Printf("cleanup: removed %d stale file(s)", removed)
	}
}
