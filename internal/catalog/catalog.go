// Package catalog resolves map and vehicle display names that the battle
// context did not record.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/park285/winchance-agent/internal/domain"
)

//go:embed names.yaml
var defaultNames []byte

// geometryMask keeps the geometry part of an arenaTypeID; the upper bits
// carry the gameplay mode.
const geometryMask = 0xFFFF

type document struct {
	Maps     map[int64]string         `yaml:"maps"`
	Vehicles map[int64]domain.Vehicle `yaml:"vehicles"`
}

// Catalog is read-only after construction.
type Catalog struct {
	maps     map[int64]string
	vehicles map[int64]domain.Vehicle
}

// Load reads the embedded names, then overlays path when it is set.
func Load(path string) (*Catalog, error) {
	c := &Catalog{maps: map[int64]string{}, vehicles: map[int64]domain.Vehicle{}}
	if err := c.apply(defaultNames); err != nil {
		return nil, fmt.Errorf("parse embedded names: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	if err := c.apply(b); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) apply(b []byte) error {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return err
	}
	for id, name := range doc.Maps {
		if s := strings.TrimSpace(name); s != "" {
			c.maps[id] = s
		}
	}
	for cd, v := range doc.Vehicles {
		v.ID = cd
		c.vehicles[cd] = v
	}
	return nil
}

// MapName looks up the full arenaTypeID first, then its geometry id.
func (c *Catalog) MapName(arenaTypeID int64) (string, bool) {
	if c == nil || arenaTypeID <= 0 {
		return "", false
	}
	if s, ok := c.maps[arenaTypeID]; ok {
		return s, true
	}
	s, ok := c.maps[arenaTypeID&geometryMask]
	return s, ok
}

// Vehicle resolves a vehicle compact descriptor.
func (c *Catalog) Vehicle(cd int64) (domain.Vehicle, bool) {
	if c == nil || cd <= 0 {
		return domain.Vehicle{}, false
	}
	v, ok := c.vehicles[cd]
	return v, ok
}
