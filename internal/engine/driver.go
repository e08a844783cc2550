package engine

import (
	"github.com/cxd309/movingblock/internal/grid"
	"github.com/cxd309/movingblock/internal/infra"
	"github.com/cxd309/movingblock/internal/train"
)

// Driver proposes the discrete action of a train for the current tick. The
// engine only vetoes or downgrades proposals, it never originates them.
type Driver interface {
	Propose(a train.Agent, tick int64) grid.Action
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(a train.Agent, tick int64) grid.Action

func (f DriverFunc) Propose(a train.Agent, tick int64) grid.Action { return f(a, tick) }

// RouteDriver steers every train along the quickest route to its target,
// weighting cells by their travel time at line speed.
type RouteDriver struct {
	topo grid.Topology
	dist *grid.DistanceMap
}

func NewRouteDriver(t grid.Topology, p *infra.Provider) *RouteDriver {
	d := &RouteDriver{topo: t, dist: grid.NewDistanceMap(t, nil)}
	d.SetProvider(p)
	return d
}

// SetProvider switches the cost source and drops every cached route.
func (d *RouteDriver) SetProvider(p *infra.Provider) {
	if p == nil {
		d.dist.SetCost(grid.UnitCost)
		return
	}
	d.dist.SetCost(p.TravelTime)
}

func (d *RouteDriver) Propose(a train.Agent, tick int64) grid.Action {
	def := a.Definition()
	if a.IsDone() || tick < def.DepartureTick {
		return grid.ActionStop
	}
	n, placed := a.Position()
	if !placed {
		return grid.ActionForward
	}
	if n.Cell == def.Target {
		return grid.ActionStop
	}
	out, ok := d.dist.NextDirection(def.Target, n)
	if !ok {
		return grid.ActionStop
	}
	return grid.ActionTowards(d.topo, n, out)
}
