package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sector is a named group of tickers with an optional per-sector result cap.
type Sector struct {
	Name    string   `yaml:"name"`
	Tickers []string `yaml:"tickers"`
	TopN    int      `yaml:"top_n"` // 0 means use the scanner default
}

// Universe is the static configuration of tickers eligible for scanning,
// grouped by sector. It is read once at startup and never mutated.
type Universe struct {
	Sectors []Sector `yaml:"sectors"`
}

// LoadUniverse reads and validates a YAML sector universe file.
// A malformed or empty universe is fatal: no meaningful scan is possible.
func LoadUniverse(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe %s: %w", path, err)
	}

	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse universe %s: %w", path, err)
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("universe %s: %w", path, err)
	}
	return &u, nil
}

// Validate rejects empty or duplicated sector definitions.
func (u *Universe) Validate() error {
	if len(u.Sectors) == 0 {
		return fmt.Errorf("no sectors defined")
	}
	seen := make(map[string]bool, len(u.Sectors))
	for _, s := range u.Sectors {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("sector with empty name")
		}
		if seen[name] {
			return fmt.Errorf("duplicate sector %q", name)
		}
		seen[name] = true
		if len(s.Tickers) == 0 {
			return fmt.Errorf("sector %q has no tickers", name)
		}
		for _, t := range s.Tickers {
			if strings.TrimSpace(t) == "" {
				return fmt.Errorf("sector %q contains an empty ticker", name)
			}
		}
	}
	return nil
}

// Sector returns the sector with the given name.
func (u *Universe) Sector(name string) (Sector, bool) {
	for _, s := range u.Sectors {
		if s.Name == name {
			return s, true
		}
	}
	return Sector{}, false
}

// SectorNames returns all sector names in sorted order, for deterministic
// scan sequencing.
func (u *Universe) SectorNames() []string {
	names := make([]string, 0, len(u.Sectors))
	for _, s := range u.Sectors {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// TickerCount returns the total number of configured tickers.
func (u *Universe) TickerCount() int {
	n := 0
	for _, s := range u.Sectors {
		n += len(s.Tickers)
	}
	return n
}
