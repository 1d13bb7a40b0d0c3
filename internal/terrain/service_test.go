package terrain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"terramesh.dev/internal/grid"
	"terramesh.dev/internal/protocol"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := New(Config{
		ID:              "T1",
		ChunkWidth:      4,
		Dimensions:      2,
		ResidencyRadius: 1,
		TickRateHz:      20,
		RemeshPerTick:   64,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func joinAgent(t *testing.T, s *Service, name string, out chan []byte) string {
	t.Helper()
	resp := make(chan JoinResponse, 1)
	s.StepOnce([]JoinRequest{{Name: name, Out: out, Resp: resp}}, nil, nil)
	select {
	case r := <-resp:
		if r.Err != "" {
			t.Fatalf("join: %s", r.Err)
		}
		return r.Welcome.AgentID
	default:
		t.Fatal("join produced no response")
		return ""
	}
}

func TestService_Requires2D(t *testing.T) {
	if _, err := New(Config{ChunkWidth: 16, Dimensions: 3}); err == nil {
		t.Fatal("expected error for 3D service config")
	}
}

func TestJoin_AssignsIDAndParams(t *testing.T) {
	s := newTestService(t)
	resp := make(chan JoinResponse, 1)
	s.StepOnce([]JoinRequest{{Name: "a", Resp: resp}}, nil, nil)
	r := <-resp
	if r.Welcome.AgentID == "" {
		t.Fatal("no agent id assigned")
	}
	if r.Welcome.WorldParams.ChunkWidth != 4 || r.Welcome.WorldParams.Dimensions != 2 {
		t.Fatalf("world params = %+v", r.Welcome.WorldParams)
	}
}

func TestJoin_EmptyNameRejected(t *testing.T) {
	s := newTestService(t)
	resp := make(chan JoinResponse, 1)
	s.StepOnce([]JoinRequest{{Name: "", Resp: resp}}, nil, nil)
	if r := <-resp; r.Err == "" {
		t.Fatal("empty name accepted")
	}
}

func TestMoveWriteRemesh_EndToEnd(t *testing.T) {
	s := newTestService(t)
	out := make(chan []byte, 256)
	id := joinAgent(t, s, "a", out)

	// Unmeshed until something runs.
	origin := grid.Point{}
	if _, err := s.meshFor(origin); !errors.Is(err, ErrUnmeshed) {
		t.Fatalf("meshFor before any extraction: %v, want ErrUnmeshed", err)
	}

	// Move: residency loads a 3x3 box, all remeshed the same tick.
	s.StepOnce(nil, nil, []ActionEnvelope{{AgentID: id, Act: protocol.ActMsg{
		Type: protocol.TypeAct,
		Move: &protocol.MoveReq{Pos: [3]int{0, 0, 0}},
	}}})

	m, err := s.meshFor(origin)
	if err != nil {
		t.Fatalf("meshFor after move tick: %v", err)
	}
	if m.VertexCount() != 16 || len(m.Indices) != 54 {
		t.Fatalf("mesh sized %d/%d, want 16/54", m.VertexCount(), len(m.Indices))
	}

	meshMsgs := 0
	for _, b := range drainRaw(out) {
		base, _ := protocol.DecodeBase(b)
		if base.Type == protocol.TypeMesh {
			meshMsgs++
		}
	}
	if meshMsgs != 9 {
		t.Fatalf("agent received %d MESH pushes, want 9", meshMsgs)
	}

	// A write dirties only its own chunk and triggers exactly one remesh.
	s.StepOnce(nil, nil, []ActionEnvelope{{AgentID: id, Act: protocol.ActMsg{
		Type:   protocol.TypeAct,
		Writes: []protocol.WriteReq{{Chunk: [3]int{0, 0, 0}, Cell: [3]int{1, 2, 0}, Value: 200}},
	}}})

	m2, err := s.meshFor(origin)
	if err != nil {
		t.Fatalf("meshFor after write: %v", err)
	}
	if m2 == m {
		t.Fatal("write did not rebuild the mesh")
	}
	vi := 1 + 2*4
	if y := m2.Positions[vi*3+1]; y != 200.0/255.0 {
		t.Fatalf("rebuilt mesh height = %v, want 200/255", y)
	}
}

func TestWrite_OutOfRangeRejected(t *testing.T) {
	s := newTestService(t)
	out := make(chan []byte, 64)
	id := joinAgent(t, s, "a", out)
	drainRaw(out)

	s.StepOnce(nil, nil, []ActionEnvelope{{AgentID: id, Act: protocol.ActMsg{
		Type:  protocol.TypeAct,
		ActID: "ACT_1",
		// Cell x == width is out of range; it must never be clamped.
		Writes: []protocol.WriteReq{{Chunk: [3]int{9, 9, 0}, Cell: [3]int{4, 0, 0}, Value: 1}},
	}}})

	sawErr := false
	for _, b := range drainRaw(out) {
		base, _ := protocol.DecodeBase(b)
		if base.Type != protocol.TypeError {
			continue
		}
		var em protocol.ErrorMsg
		if err := json.Unmarshal(b, &em); err != nil {
			t.Fatalf("unmarshal error msg: %v", err)
		}
		if em.Code != protocol.ErrOutOfRange || em.ActID != "ACT_1" {
			t.Fatalf("error = %+v, want E_OUT_OF_RANGE for ACT_1", em)
		}
		sawErr = true
	}
	if !sawErr {
		t.Fatal("no ERROR message for out-of-range write")
	}
	// The targeted cell kept its zero value.
	ck, ok := s.chunks.Get(grid.Point{X: 9, Y: 9})
	if !ok {
		t.Fatal("chunk not ensured")
	}
	if v, _ := ck.Sample(grid.Coord{3, 0, 0}); v != 0 {
		t.Fatalf("neighbouring cell mutated: %d", v)
	}
}

func TestMeshGet_UnmeshedError(t *testing.T) {
	s := newTestService(t)
	out := make(chan []byte, 64)
	id := joinAgent(t, s, "a", out)
	drainRaw(out)

	s.StepOnce(nil, nil, []ActionEnvelope{{AgentID: id, Act: protocol.ActMsg{
		Type:    protocol.TypeAct,
		ActID:   "ACT_2",
		MeshGet: &protocol.MeshGet{Chunk: [3]int{50, 50, 0}},
	}}})

	var em protocol.ErrorMsg
	found := false
	for _, b := range drainRaw(out) {
		base, _ := protocol.DecodeBase(b)
		if base.Type == protocol.TypeError {
			_ = json.Unmarshal(b, &em)
			found = true
		}
	}
	if !found || em.Code != protocol.ErrUnmeshed {
		t.Fatalf("mesh_get for unmeshed chunk: found=%v code=%s, want E_UNMESHED", found, em.Code)
	}
}

func TestLeave_EvictsAndNotifies(t *testing.T) {
	s := newTestService(t)
	out := make(chan []byte, 256)
	id := joinAgent(t, s, "a", out)

	s.StepOnce(nil, nil, []ActionEnvelope{{AgentID: id, Act: protocol.ActMsg{
		Type: protocol.TypeAct,
		Move: &protocol.MoveReq{Pos: [3]int{0, 0, 0}},
	}}})
	if s.chunks.Len() != 9 {
		t.Fatalf("resident = %d, want 9", s.chunks.Len())
	}

	s.StepOnce(nil, []string{id}, nil)
	if s.chunks.Len() != 0 {
		t.Fatalf("resident after leave = %d, want 0", s.chunks.Len())
	}
	if _, err := s.meshFor(grid.Point{}); !errors.Is(err, ErrUnmeshed) {
		t.Fatal("mesh cache survived eviction")
	}
}

func TestRemeshBudget_SpillsToNextTick(t *testing.T) {
	s, err := New(Config{
		ChunkWidth:      4,
		Dimensions:      2,
		ResidencyRadius: 1,
		TickRateHz:      20,
		RemeshPerTick:   4,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := make(chan []byte, 256)
	id := joinAgent(t, s, "a", out)

	// 9 chunks load; only 4 extract this tick.
	s.StepOnce(nil, nil, []ActionEnvelope{{AgentID: id, Act: protocol.ActMsg{
		Type: protocol.TypeAct,
		Move: &protocol.MoveReq{Pos: [3]int{0, 0, 0}},
	}}})
	if got := s.chunks.OutdatedLen(); got != 5 {
		t.Fatalf("outdated after first tick = %d, want 5", got)
	}
	s.StepOnce(nil, nil, nil)
	if got := s.chunks.OutdatedLen(); got != 1 {
		t.Fatalf("outdated after second tick = %d, want 1", got)
	}
	s.StepOnce(nil, nil, nil)
	if got := s.chunks.OutdatedLen(); got != 0 {
		t.Fatalf("outdated after third tick = %d, want 0", got)
	}
	if len(s.meshes) != 9 {
		t.Fatalf("meshes cached = %d, want 9", len(s.meshes))
	}
}

func TestMesh_ChannelQuery(t *testing.T) {
	s := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	out := make(chan []byte, 256)
	resp := make(chan JoinResponse, 1)
	s.Join() <- JoinRequest{Name: "a", Out: out, Resp: resp}
	var id string
	select {
	case r := <-resp:
		id = r.Welcome.AgentID
	case <-time.After(2 * time.Second):
		t.Fatal("join timed out")
	}

	s.Inbox() <- ActionEnvelope{AgentID: id, Act: protocol.ActMsg{
		Type: protocol.TypeAct,
		Move: &protocol.MoveReq{Pos: [3]int{0, 0, 0}},
	}}

	deadline := time.Now().Add(2 * time.Second)
	for {
		callCtx, callCancel := context.WithTimeout(context.Background(), time.Second)
		m, err := s.Mesh(callCtx, grid.Point{})
		callCancel()
		if err == nil {
			if m.VertexCount() != 16 {
				t.Fatalf("mesh vertices = %d, want 16", m.VertexCount())
			}
			return
		}
		if !errors.Is(err, ErrUnmeshed) {
			t.Fatalf("Mesh: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("mesh never became available")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func drainRaw(out chan []byte) [][]byte {
	var msgs [][]byte
	for {
		select {
		case b := <-out:
			msgs = append(msgs, b)
		default:
			return msgs
		}
	}
}
