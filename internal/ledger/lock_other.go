//go:build !unix

package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Without flock the lock only serializes writers inside this process.
var processLocks sync.Map // path -> *sync.Mutex

func acquireLock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	_ = f.Close()

	v, _ := processLocks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock, nil
}
