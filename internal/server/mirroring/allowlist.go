package mirroring

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
)

// keyFileName matches "code=<public code>-ip=<address>.txt".
var keyFileName = regexp.MustCompile(`^code=([0-9.]+)-ip=([^/]+)\.txt$`)

// AllowList holds the public keys of peers allowed to mirror from us.
type AllowList struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewAllowList builds a list from keys directly.
func NewAllowList(keys ...string) *AllowList {
	a := &AllowList{keys: make(map[string]string, len(keys))}
	for _, k := range keys {
		a.keys[k] = ""
	}
	return a
}

// LoadAllowList reads every key file in dir. The first non-empty line of
// a file is the peer public key. Files with other names or unreadable keys
// are skipped. A missing dir yields an empty list.
func LoadAllowList(ctx context.Context, dir string, log logging.Logger) (*AllowList, error) {
	a := NewAllowList()
	if dir == "" {
		return a, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn(ctx, "mirror key directory missing", "dir", dir)
		return a, nil
	}
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		m := keyFileName.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		key, err := readKeyFile(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Warn(ctx, "mirror key file skipped", "file", e.Name(), "error", err)
			continue
		}
		code, err := cryptox.ComputePublicCode(key)
		if err == nil && digits(code) != digits(m[1]) {
			log.Warn(ctx, "mirror key file code does not match its key", "file", e.Name(), "code", code)
		}
		a.keys[key] = m[2]
	}
	log.Info(ctx, "mirror allow-list loaded", "peers", a.Len())
	return a, nil
}

func digits(code string) string {
	return strings.ReplaceAll(code, ".", "")
}

func readKeyFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, _, err := cryptox.ParsePublicKey(line); err != nil {
			return "", err
		}
		return line, nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", errors.New("no public key")
}

// Contains reports whether account may mirror.
func (a *AllowList) Contains(account string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.keys[account]
	return ok
}

func (a *AllowList) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys)
}

// Replace swaps the whole list, e.g. after the key directory changed.
func (a *AllowList) Replace(other *AllowList) {
	other.mu.RLock()
	keys := make(map[string]string, len(other.keys))
	for k, v := range other.keys {
		keys[k] = v
	}
	other.mu.RUnlock()

	a.mu.Lock()
	a.keys = keys
	a.mu.Unlock()
}
