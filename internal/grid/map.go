package grid

import (
	"fmt"
)

// Track is a polyline of consecutive, adjacent cells. Tracks are laid in both
// travel directions.
type Track struct {
	Cells []Cell `json:"cells" yaml:"cells"`
}

// CellTransitions sets the raw transition word of one cell: four nibbles,
// nibble i holding the outgoing mask for a train facing Direction(i).
type CellTransitions struct {
	Cell        `yaml:",inline"`
	Transitions uint16 `json:"transitions" yaml:"transitions"`
}

// MapData is the serialisable input representation of a track layout.
type MapData struct {
	Height int               `json:"height" yaml:"height" validate:"gt=0"`
	Width  int               `json:"width" yaml:"width" validate:"gt=0"`
	Tracks []Track           `json:"tracks,omitempty" yaml:"tracks,omitempty"`
	Cells  []CellTransitions `json:"cells,omitempty" yaml:"cells,omitempty"`
}

// Map is a grid transition map. It implements Topology.
type Map struct {
	height, width int
	words         []uint16
}

// NewMap builds a Map from MapData, laying every track and then applying raw
// cell words on top.
func NewMap(data MapData) (*Map, error) {
	b, err := NewBuilder(data.Height, data.Width)
	if err != nil {
		return nil, err
	}
	for i, tr := range data.Tracks {
		if err := b.AddTrack(tr.Cells...); err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
	}
	m := b.Build()
	for _, ct := range data.Cells {
		if !InBounds(m, ct.Cell) {
			return nil, fmt.Errorf("cell %v: %w", ct.Cell, ErrOutOfBounds)
		}
		m.words[Index(m, ct.Cell)] = ct.Transitions
	}
	return m, nil
}

func (m *Map) Height() int { return m.height }
func (m *Map) Width() int  { return m.width }

func (m *Map) Transitions(c Cell, in Direction) Transitions {
	if !InBounds(m, c) || !in.Valid() {
		return 0
	}
	return Transitions(m.words[Index(m, c)]>>(4*uint(in))) & 0xF
}

// Word returns the raw 16-bit transition word of c.
func (m *Map) Word(c Cell) uint16 {
	if !InBounds(m, c) {
		return 0
	}
	return m.words[Index(m, c)]
}

// Builder lays tracks onto an empty grid.
type Builder struct {
	m     *Map
	sides []Transitions // directions in which each cell joins a neighbouring track cell
}

func NewBuilder(height, width int) (*Builder, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("grid %dx%d: %w", height, width, ErrOutOfBounds)
	}
	return &Builder{
		m:     &Map{height: height, width: width, words: make([]uint16, height*width)},
		sides: make([]Transitions, height*width),
	}, nil
}

// Allow permits a train in c facing in to leave towards out.
func (b *Builder) Allow(c Cell, in, out Direction) {
	if !InBounds(b.m, c) || !in.Valid() || !out.Valid() {
		return
	}
	b.m.words[Index(b.m, c)] |= uint16(Bit(out)) << (4 * uint(in))
}

// AddTrack lays a track through cells in both directions. A track continuing
// from the middle of another one forms a switch at the cell where they part;
// start the branch one cell before that point so the diverging transition has
// a heading to come from.
func (b *Builder) AddTrack(cells ...Cell) error {
	if len(cells) < 2 {
		return fmt.Errorf("track needs at least two cells, got %d", len(cells))
	}
	heads := make([]Direction, len(cells)-1)
	for i := range heads {
		if !InBounds(b.m, cells[i]) {
			return fmt.Errorf("cell %v: %w", cells[i], ErrOutOfBounds)
		}
		d, err := DirectionBetween(cells[i], cells[i+1])
		if err != nil {
			return err
		}
		heads[i] = d
	}
	last := cells[len(cells)-1]
	if !InBounds(b.m, last) {
		return fmt.Errorf("cell %v: %w", last, ErrOutOfBounds)
	}

	for i, h := range heads {
		b.sides[Index(b.m, cells[i])] |= Bit(h)
		b.sides[Index(b.m, cells[i+1])] |= Bit(h.Opposite())
	}

	// Ends: a train standing on them may head into the track.
	b.Allow(cells[0], heads[0], heads[0])
	back := heads[len(heads)-1].Opposite()
	b.Allow(last, back, back)

	for i := 1; i < len(cells)-1; i++ {
		in, out := heads[i-1], heads[i]
		b.Allow(cells[i], in, out)
		b.Allow(cells[i], out.Opposite(), in.Opposite())
	}
	return nil
}

// Build finishes the layout: cells joined to a single neighbour become dead
// ends where a train may turn around.
func (b *Builder) Build() *Map {
	for i, s := range b.sides {
		if s.Count() != 1 {
			continue
		}
		c := Cell{Row: i / b.m.width, Col: i % b.m.width}
		d := s.Directions()[0]
		b.Allow(c, d.Opposite(), d)
		b.Allow(c, d, d)
	}
	return b.m
}
