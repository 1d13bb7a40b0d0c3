package chunkmap

import "terramesh.dev/internal/grid"

// RegisterAgent starts tracking an agent on the given channel. The
// agent influences residency only once UpdateAgent reports a position,
// and only when its channel matches the map's.
func (m *Map[T]) RegisterAgent(id string, channel uint8) {
	if _, ok := m.agents[id]; ok {
		return
	}
	m.agents[id] = &agentState{channel: channel}
}

// RemoveAgent stops tracking an agent and returns the eviction
// candidates its disappearance frees up.
func (m *Map[T]) RemoveAgent(id string) ResidencyChange {
	st, ok := m.agents[id]
	if !ok {
		return ResidencyChange{}
	}
	delete(m.agents, id)
	if !st.hasPos || st.channel != m.cfg.Channel {
		return ResidencyChange{}
	}
	ch := m.cfg.Policy.Decide(st.pos, st.pos, false, m.cfg.Radius)
	// Everything the agent required is now a candidate; Load was the
	// set it held resident.
	ch.Evict = m.filterRequired(ch.Load)
	ch.Load = nil
	return ch
}

// UpdateAgent records an agent's new chunk-grid position and applies
// the residency policy against its previous one. Every coordinate in
// the load set is ensured (created chunks start outdated). Eviction
// candidates still required by another same-channel agent are dropped
// from the result; acting on the rest is the caller's call.
func (m *Map[T]) UpdateAgent(id string, pos grid.Point) ResidencyChange {
	st, ok := m.agents[id]
	if !ok {
		st = &agentState{channel: m.cfg.Channel}
		m.agents[id] = st
	}
	prev, hasPrev := st.pos, st.hasPos
	st.pos, st.hasPos = pos, true

	if st.channel != m.cfg.Channel {
		return ResidencyChange{}
	}
	ch := m.cfg.Policy.Decide(prev, pos, hasPrev, m.cfg.Radius)
	for _, p := range ch.Load {
		m.Ensure(p)
	}
	ch.Evict = m.filterRequired(ch.Evict)
	return ch
}

// AgentPos returns the last recorded position for an agent.
func (m *Map[T]) AgentPos(id string) (grid.Point, bool) {
	st, ok := m.agents[id]
	if !ok || !st.hasPos {
		return grid.Point{}, false
	}
	return st.pos, true
}

// filterRequired drops candidates that some same-channel agent still
// keeps inside its radius.
func (m *Map[T]) filterRequired(candidates []grid.Point) []grid.Point {
	if len(candidates) == 0 {
		return nil
	}
	out := candidates[:0]
	for _, p := range candidates {
		if !m.required(p) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (m *Map[T]) required(p grid.Point) bool {
	for _, st := range m.agents {
		if !st.hasPos || st.channel != m.cfg.Channel {
			continue
		}
		if p.Chebyshev(st.pos, m.cfg.Dims) <= m.cfg.Radius && sameSlice(p, st.pos, m.cfg.Dims) {
			return true
		}
	}
	return false
}
