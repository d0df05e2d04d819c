package config

import (
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// ResolvePath applies CLI/XDG fallback rules for config.yaml location.
func ResolvePath(explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	return filepath.Join(xdg.ConfigHome, "inhibitor", "config.yaml")
}
