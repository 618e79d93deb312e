package xdg

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under every XDG base directory
const AppName = "judge"

// Dirs resolves XDG Base Directory paths for the judge
type Dirs struct {
	configHome string
	cacheHome  string
}

// New resolves directories from the process environment
func New() *Dirs {
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) *Dirs {
	home := getenv("HOME")
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = h
		} else {
			home = os.TempDir()
		}
	}

	d := &Dirs{
		configHome: getenv("XDG_CONFIG_HOME"),
		cacheHome:  getenv("XDG_CACHE_HOME"),
	}
	// relative values must be ignored
	if d.configHome == "" || !filepath.IsAbs(d.configHome) {
		d.configHome = filepath.Join(home, ".config")
	}
	if d.cacheHome == "" || !filepath.IsAbs(d.cacheHome) {
		d.cacheHome = filepath.Join(home, ".cache")
	}
	return d
}

// ConfigHome returns the base directory for user-specific configuration files
func (d *Dirs) ConfigHome() string { return d.configHome }

// CacheHome returns the base directory for user-specific cached data
func (d *Dirs) CacheHome() string { return d.cacheHome }

// AppConfigDir returns the judge configuration directory
func (d *Dirs) AppConfigDir() string {
	return filepath.Join(d.configHome, AppName)
}

// AppCacheDir returns the judge cache directory, optionally nested
func (d *Dirs) AppCacheDir(sub ...string) string {
	return filepath.Join(append([]string{d.cacheHome, AppName}, sub...)...)
}

// EnsureDir creates the directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
