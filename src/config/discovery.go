package config

import (
	"os"
)

// Location describes one candidate configuration file in the load order.
type Location struct {
	Path    string
	Source  ConfigSource
	Present bool
}

// Locations reports each configured file path in load order, lowest
// precedence first, with whether it exists on disk. Later entries override
// earlier ones when both are present. Used by diagnostics.
func Locations(p ConfigPrecedence) []Location {
	candidates := []struct {
		path   string
		source ConfigSource
	}{
		{p.SystemConfig, SourceSystem},
		{p.UserConfig, SourceUser},
		{p.ProjectConfig, SourceProject},
		{p.LocalConfig, SourceLocal},
	}

	var locations []Location
	for _, c := range candidates {
		if c.path == "" {
			continue
		}
		present := false
		if info, err := os.Stat(c.path); err == nil && !info.IsDir() {
			present = true
		}
		locations = append(locations, Location{
			Path:    c.path,
			Source:  c.source,
			Present: present,
		})
	}

	return locations
}
