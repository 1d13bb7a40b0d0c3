package terrain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"terramesh.dev/internal/chunk"
	"terramesh.dev/internal/chunkmap"
	"terramesh.dev/internal/grid"
	"terramesh.dev/internal/mesh"
	"terramesh.dev/internal/protocol"
)

// step advances one tick: joins, leaves, queued actions, then a bounded
// remesh pass over the outdated set.
func (s *Service) step(joins []JoinRequest, leaves []string, actions []ActionEnvelope) {
	nowTick := s.tick.Add(1)

	for _, req := range joins {
		s.handleJoin(req)
	}
	for _, id := range leaves {
		s.handleLeave(id)
	}
	for i := range actions {
		s.applyAct(actions[i], nowTick)
	}
	s.remeshOutdated(nowTick)
}

// StepOnce runs a single synchronous tick. Intended for tests and for
// embedders that drive pacing themselves; must not be mixed with Run.
func (s *Service) StepOnce(joins []JoinRequest, leaves []string, actions []ActionEnvelope) uint64 {
	s.step(joins, leaves, actions)
	return s.tick.Load()
}

func (s *Service) handleJoin(req JoinRequest) {
	resp := JoinResponse{}
	if req.Name == "" {
		resp.Err = "empty agent name"
	} else {
		id := uuid.NewString()
		s.clients[id] = &client{id: id, name: req.Name, channel: req.Channel, out: req.Out}
		s.chunks.RegisterAgent(id, req.Channel)
		resp.Welcome = protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			AgentID:         id,
			WorldParams: protocol.WorldParams{
				ChunkWidth:      s.cfg.ChunkWidth,
				Dimensions:      s.cfg.Dimensions,
				ResidencyRadius: s.cfg.ResidencyRadius,
				ChunkScale:      s.cfg.ChunkScale,
				TickRateHz:      s.cfg.TickRateHz,
			},
		}
	}
	if req.Resp != nil {
		select {
		case req.Resp <- resp:
		default:
		}
	}
}

func (s *Service) handleLeave(id string) {
	if _, ok := s.clients[id]; !ok {
		return
	}
	delete(s.clients, id)
	ch := s.chunks.RemoveAgent(id)
	s.applyEvictions(ch, s.tick.Load())
}

func (s *Service) applyAct(env ActionEnvelope, nowTick uint64) {
	c, ok := s.clients[env.AgentID]
	if !ok {
		return
	}
	act := env.Act

	if act.Move != nil {
		pt := pointFrom(act.Move.Pos)
		ch := s.chunks.UpdateAgent(env.AgentID, pt)
		s.applyEvictions(ch, nowTick)
	}

	for _, wr := range act.Writes {
		if err := s.applyWrite(env.AgentID, wr, nowTick); err != nil {
			code := protocol.ErrInternal
			if errors.Is(err, chunk.ErrOutOfRange) {
				code = protocol.ErrOutOfRange
			}
			s.sendError(c, act.ActID, code, err.Error())
		}
	}

	if act.MeshGet != nil {
		pt := pointFrom(act.MeshGet.Chunk)
		m, err := s.meshFor(pt)
		if err != nil {
			s.sendError(c, act.ActID, protocol.ErrUnmeshed, err.Error())
		} else {
			s.sendMesh(c, pt, m, nowTick)
		}
	}
}

// applyWrite stores one cell value and flags the chunk for remeshing.
// Out-of-range cells are rejected, never clamped.
func (s *Service) applyWrite(agentID string, wr protocol.WriteReq, nowTick uint64) error {
	pt := pointFrom(wr.Chunk)
	ck, _ := s.chunks.Ensure(pt)
	if err := ck.Write(grid.Coord(wr.Cell), wr.Value); err != nil {
		return err
	}
	s.chunks.MarkOutdated(pt)
	for _, r := range s.recorders {
		r.RecordEdit(EditEvent{
			Tick:    nowTick,
			AgentID: agentID,
			Chunk:   wr.Chunk,
			Cell:    wr.Cell,
			Value:   wr.Value,
		})
	}
	return nil
}

// remeshOutdated extracts up to RemeshPerTick pending chunks. Anything
// beyond the budget stays queued for the next tick.
func (s *Service) remeshOutdated(nowTick uint64) {
	for i := 0; i < s.cfg.RemeshPerTick; i++ {
		pt, ok := s.chunks.DrainOne()
		if !ok {
			return
		}
		ck, found := s.chunks.Get(pt)
		if !found {
			// Evicted while pending; nothing to extract.
			continue
		}
		start := time.Now()
		m, err := mesh.Extract(ck)
		if err != nil {
			continue
		}
		s.meshes[pt] = m
		for _, r := range s.recorders {
			r.RecordRemesh(RemeshEvent{
				Tick:       nowTick,
				Chunk:      [3]int{pt.X, pt.Y, pt.Z},
				Vertices:   m.VertexCount(),
				Indices:    len(m.Indices),
				DurationUS: time.Since(start).Microseconds(),
			})
		}
		for _, c := range s.clients {
			if c.channel == s.cfg.Channel {
				s.sendMesh(c, pt, m, nowTick)
			}
		}
	}
}

func (s *Service) applyEvictions(ch chunkmap.ResidencyChange, nowTick uint64) {
	for _, pt := range ch.Evict {
		if !s.chunks.Evict(pt) {
			continue
		}
		delete(s.meshes, pt)
		note := protocol.EvictMsg{
			Type:            protocol.TypeEvict,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			Chunk:           [3]int{pt.X, pt.Y, pt.Z},
		}
		for _, c := range s.clients {
			if c.channel == s.cfg.Channel {
				s.sendJSON(c, note)
			}
		}
	}
}

func (s *Service) sendMesh(c *client, pt grid.Point, m *mesh.Mesh, nowTick uint64) {
	payload, err := protocol.EncodeMeshPayload(m)
	if err != nil {
		s.sendError(c, "", protocol.ErrInternal, err.Error())
		return
	}
	s.sendJSON(c, protocol.MeshMsg{
		Type:            protocol.TypeMesh,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		Chunk:           [3]int{pt.X, pt.Y, pt.Z},
		Scale:           s.cfg.ChunkScale,
		Offset:          s.chunkOffset(pt),
		VertexCount:     m.VertexCount(),
		IndexCount:      len(m.Indices),
		Encoding:        protocol.EncodingZstd,
		Payload:         payload,
	})
}

// chunkOffset places a chunk in world space: mesh positions are
// normalized to [0,1), so the transform is a uniform scale plus this
// offset. Lattice X/Y are the planar axes; the world up axis is y.
func (s *Service) chunkOffset(pt grid.Point) [3]float64 {
	return [3]float64{
		float64(pt.X) * s.cfg.ChunkScale,
		0,
		float64(pt.Y) * s.cfg.ChunkScale,
	}
}

func (s *Service) sendError(c *client, actID, code, msg string) {
	s.sendJSON(c, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		ActID:           actID,
		Code:            code,
		Message:         msg,
	})
}

// sendJSON drops the message when the client outbox is full; slow
// consumers lose updates rather than stalling the loop.
func (s *Service) sendJSON(c *client, v any) {
	if c.out == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.out <- b:
	default:
	}
}

func pointFrom(v [3]int) grid.Point {
	return grid.Point{X: v[0], Y: v[1], Z: v[2]}
}
