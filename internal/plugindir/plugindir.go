// Package plugindir resolves the plugin directory: a thin, non-recursive
// discovery concern kept deliberately outside the core (spec §6). It is
// not responsible for validating that a file is actually a WASM module —
// internal/plugin.LoadFile does that.
package plugindir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Resolve returns the plugin directory to scan, preferring
// $XDG_CONFIG_HOME/tessera/plugins, then $HOME/.config/tessera/plugins,
// then /etc/tessera/plugins. It does not create the directory; it only
// picks the first candidate that exists.
func Resolve() (string, error) {
	var candidates []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "tessera", "plugins"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "tessera", "plugins"))
	}
	candidates = append(candidates, "/etc/tessera/plugins")

	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}

	return "", fmt.Errorf("plugindir: no plugin directory found, tried %v", candidates)
}
