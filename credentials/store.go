package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/archivist/core"
)

// DirName is the directory under the user's home that holds token files.
const DirName = ".giant-utils"

// ErrNoToken is returned by Get when no token was saved for a server.
var ErrNoToken = errors.New("no auth token saved for server, run login first")

// Store reads and writes token files in Dir.
type Store struct {
	Dir string
}

// DefaultStore returns a Store rooted at ~/.giant-utils.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil, core.ErrUnsupportedSystem
	}
	return &Store{Dir: filepath.Join(home, DirName)}, nil
}

// NewStore returns a Store rooted at dir, or the default location when dir
// is empty.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return DefaultStore()
	}
	return &Store{Dir: dir}, nil
}

// FileName returns the token file name for a server URI: the URI with any
// trailing '/' removed, percent-encoded so it is a single path element.
func FileName(serverURI string) string {
	key := strings.TrimRight(serverURI, "/")
	return strings.ReplaceAll(url.QueryEscape(key), "+", "%20")
}

// Path returns the token file path for serverURI.
func (s *Store) Path(serverURI string) string {
	return filepath.Join(s.Dir, FileName(serverURI))
}

// legacyFileName is the name older releases used: the URI as normalized
// with a trailing '/'.
func legacyFileName(serverURI string) string {
	return strings.ReplaceAll(url.QueryEscape(strings.TrimRight(serverURI, "/")+"/"), "+", "%20")
}

// Get returns the token saved for serverURI exactly as it was stored.
// Files written under the trailing-slash name are found too.
func (s *Store) Get(serverURI string) (string, error) {
	data, err := os.ReadFile(s.Path(serverURI))
	if errors.Is(err, fs.ErrNotExist) {
		data, err = os.ReadFile(filepath.Join(s.Dir, legacyFileName(serverURI)))
	}
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNoToken, serverURI)
	}
	if err != nil {
		return "", fmt.Errorf("read auth token: %w", err)
	}
	return string(data), nil
}

// Set saves token for serverURI, replacing any previous token.
func (s *Store) Set(serverURI, token string) error {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	if err := os.WriteFile(s.Path(serverURI), []byte(token), 0600); err != nil {
		return fmt.Errorf("write auth token: %w", err)
	}
	return nil
}
