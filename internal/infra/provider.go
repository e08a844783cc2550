package infra

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cxd309/movingblock/internal/grid"
)

// DefaultCacheSize is the number of cells whose data a Provider keeps.
const DefaultCacheSize = 4096

// Provider answers cell data queries from a Source, falling back to the
// built-in defaults, and caches the result per cell. The cache is emptied
// whenever the source changes.
type Provider struct {
	src   Source
	cache *lru.Cache[grid.Cell, CellData]
}

// NewProvider returns a Provider over src. A nil src answers every query with
// Default.
func NewProvider(src Source, cacheSize int) (*Provider, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[grid.Cell, CellData](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cell cache: %w", err)
	}
	return &Provider{src: src, cache: cache}, nil
}

// SetInfrastructureData swaps the source and invalidates every cached cell.
func (p *Provider) SetInfrastructureData(src Source) {
	p.src = src
	p.cache.Purge()
}

// Lookup returns the data for c. grid.NoCell and cells the source knows
// nothing about get defaults.
func (p *Provider) Lookup(c grid.Cell) CellData {
	if c == grid.NoCell || p.src == nil {
		return Default
	}
	if d, ok := p.cache.Get(c); ok {
		return d
	}
	d := Default
	if v, ok := p.src.Length(c); ok {
		d.Length = v
	}
	if v, ok := p.src.MaxVelocity(c); ok {
		d.MaxVelocity = v
	}
	if v, ok := p.src.Gradient(c); ok {
		d.Gradient = v
	}
	p.cache.Add(c, d)
	return d
}

// TravelTime is the time to cross c at its maximum velocity. It is the
// distance map cost of the cell.
func (p *Provider) TravelTime(c grid.Cell) float64 {
	d := p.Lookup(c)
	return d.Length / d.MaxVelocity
}

// Validate checks the data of every track cell of t, so that bad values from
// the source stop a run before it starts.
func (p *Provider) Validate(t grid.Topology) error {
	for r := 0; r < t.Height(); r++ {
		for c := 0; c < t.Width(); c++ {
			cell := grid.Cell{Row: r, Col: c}
			if !grid.HasTrack(t, cell) {
				continue
			}
			if err := p.Lookup(cell).Validate(); err != nil {
				return fmt.Errorf("cell %v: %w", cell, err)
			}
		}
	}
	return nil
}
