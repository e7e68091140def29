package config

import (
	"os"
	"path/filepath"
)

// FileName is the configuration file name looked up in the config dirs.
const FileName = "dschat.yaml"

// SearchPaths returns the candidate config files in lookup order:
// $XDG_CONFIG_HOME/dschat/dschat.yaml, then ~/.config/dschat/dschat.yaml.
func SearchPaths() []string {
	var paths []string
	if d := os.Getenv("XDG_CONFIG_HOME"); d != "" {
		paths = append(paths, filepath.Join(d, "dschat", FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "dschat", FileName))
	}
	return paths
}

// ResolvePath returns the config file to load. An explicit path wins and
// must exist; otherwise the first existing SearchPaths entry is used.
func ResolvePath(explicit string) (string, bool) {
	if explicit != "" {
		explicit = expandHome(explicit)
		return explicit, fileExists(explicit)
	}
	for _, p := range SearchPaths() {
		if fileExists(p) {
			return p, true
		}
	}
	return "", false
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
