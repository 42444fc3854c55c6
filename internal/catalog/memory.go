package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"service-intake/internal/models"

	"gopkg.in/yaml.v3"
)

// Seed is the on-disk catalog format used for local runs and seeding.
type Seed struct {
	Services     []models.Service      `yaml:"services"`
	Zones        []models.Zone         `yaml:"zones"`
	Availability []models.Availability `yaml:"availability"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed %s: %w", path, err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}
	seen := make(map[string]bool)
	for _, svc := range seed.Services {
		if svc.Code == "" {
			return nil, fmt.Errorf("catalog seed: service %q has no code", svc.Name)
		}
		if seen["s:"+svc.Code] {
			return nil, fmt.Errorf("catalog seed: duplicate service code %q", svc.Code)
		}
		seen["s:"+svc.Code] = true
	}
	for _, z := range seed.Zones {
		if z.Code == "" {
			return nil, fmt.Errorf("catalog seed: zone %q has no code", z.Name)
		}
		if seen["z:"+z.Code] {
			return nil, fmt.Errorf("catalog seed: duplicate zone code %q", z.Code)
		}
		seen["z:"+z.Code] = true
	}
	return &seed, nil
}

// MemoryCatalog serves a seed from memory.
type MemoryCatalog struct {
	mu           sync.RWMutex
	services     map[string]models.Service
	zones        map[string]models.Zone
	availability []models.Availability
}

func NewMemoryCatalog(seed *Seed) *MemoryCatalog {
	c := &MemoryCatalog{
		services: make(map[string]models.Service),
		zones:    make(map[string]models.Zone),
	}
	if seed != nil {
		for _, s := range seed.Services {
			c.services[s.Code] = s
		}
		for _, z := range seed.Zones {
			c.zones[z.Code] = z
		}
		c.availability = append(c.availability, seed.Availability...)
	}
	return c
}

func (c *MemoryCatalog) PutService(s models.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[s.Code] = s
}

func (c *MemoryCatalog) GetService(_ context.Context, code string) (models.Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.services[code]
	if !ok {
		return models.Service{}, notFound("services", code)
	}
	return s, nil
}

func (c *MemoryCatalog) GetZone(_ context.Context, code string) (models.Zone, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	z, ok := c.zones[code]
	if !ok {
		return models.Zone{}, notFound("zones", code)
	}
	return z, nil
}

func (c *MemoryCatalog) ListServices(_ context.Context) ([]models.Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Service, 0, len(c.services))
	for _, s := range c.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (c *MemoryCatalog) ListZones(_ context.Context) ([]models.Zone, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Zone, 0, len(c.zones))
	for _, z := range c.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (c *MemoryCatalog) SearchServices(ctx context.Context, query string, limit int) ([]ServiceMatch, error) {
	services, _ := c.ListServices(ctx)
	return ScoreServices(services, query, limit), nil
}

func (c *MemoryCatalog) IsServiceAvailable(_ context.Context, serviceCode, zoneCode string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.availability {
		if a.Active && a.ServiceCode == serviceCode && a.ZoneCode == zoneCode {
			return true, nil
		}
	}
	return false, nil
}

func (c *MemoryCatalog) ZoneAvailability(_ context.Context, zoneCode string) ([]models.Availability, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.Availability
	for _, a := range c.availability {
		if a.Active && a.ZoneCode == zoneCode {
			out = append(out, a)
		}
	}
	return out, nil
}
