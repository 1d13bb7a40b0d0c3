// Package terrain runs the chunk registry and mesh extraction behind a
// single loop goroutine. All registry and mesh state is owned by that
// goroutine; transports talk to it through channels, which is the
// serialization discipline the chunk buffers require.
package terrain

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"terramesh.dev/internal/chunkmap"
	"terramesh.dev/internal/grid"
	"terramesh.dev/internal/mesh"
	"terramesh.dev/internal/protocol"
)

// ErrUnmeshed reports a mesh request for a chunk no extraction has run
// for yet. Callers trigger extraction first or treat it as nothing to
// render; the service never hands out stale or default geometry.
var ErrUnmeshed = errors.New("mesh not yet extracted for chunk")

type JoinRequest struct {
	Name    string
	Channel uint8
	Out     chan []byte
	Resp    chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Err     string
}

type ActionEnvelope struct {
	AgentID string
	Act     protocol.ActMsg
}

// RemeshEvent and EditEvent feed the observability sinks. They describe
// extraction work and cell mutations, never chunk contents.
type RemeshEvent struct {
	Tick       uint64 `json:"tick"`
	Chunk      [3]int `json:"chunk"`
	Vertices   int    `json:"vertices"`
	Indices    int    `json:"indices"`
	DurationUS int64  `json:"duration_us"`
}

type EditEvent struct {
	Tick    uint64 `json:"tick"`
	AgentID string `json:"agent_id"`
	Chunk   [3]int `json:"chunk"`
	Cell    [3]int `json:"cell"`
	Value   uint8  `json:"value"`
}

// Recorder receives remesh/edit events. Implementations must not
// block; the service calls them from the loop goroutine.
type Recorder interface {
	RecordRemesh(RemeshEvent)
	RecordEdit(EditEvent)
}

type client struct {
	id      string
	name    string
	channel uint8
	out     chan []byte
}

type meshReq struct {
	pt   grid.Point
	resp chan meshResp
}

type meshResp struct {
	m   *mesh.Mesh
	err error
}

// Service is a single-threaded terrain authority.
// All state must be accessed only from the loop goroutine.
type Service struct {
	cfg Config

	tick atomic.Uint64

	chunks  *chunkmap.Map[uint8]
	meshes  map[grid.Point]*mesh.Mesh
	clients map[string]*client

	recorders []Recorder

	inbox   chan ActionEnvelope
	join    chan JoinRequest
	leave   chan string
	meshReq chan meshReq
	stop    chan struct{}
}

// New builds a service. The mesh side of the service is a height-field
// extractor, so Dimensions must be 2; volumetric chunks are usable
// through chunk/chunkmap directly but have no mesh contract here.
func New(cfg Config) (*Service, error) {
	cfg.applyDefaults()
	if cfg.Dimensions != 2 {
		return nil, fmt.Errorf("terrain service meshes 2D height chunks only, got dimensions %d", cfg.Dimensions)
	}
	chunks, err := chunkmap.New[uint8](chunkmap.Config{
		Width:   cfg.ChunkWidth,
		Dims:    cfg.Dimensions,
		Radius:  cfg.ResidencyRadius,
		Channel: cfg.Channel,
	})
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:     cfg,
		chunks:  chunks,
		meshes:  map[grid.Point]*mesh.Mesh{},
		clients: map[string]*client{},
		inbox:   make(chan ActionEnvelope, 256),
		join:    make(chan JoinRequest, 16),
		leave:   make(chan string, 16),
		meshReq: make(chan meshReq, 16),
		stop:    make(chan struct{}),
	}, nil
}

func (s *Service) Config() Config { return s.cfg }

func (s *Service) AddRecorder(r Recorder) { s.recorders = append(s.recorders, r) }

func (s *Service) Inbox() chan<- ActionEnvelope { return s.inbox }
func (s *Service) Join() chan<- JoinRequest     { return s.join }
func (s *Service) Leave() chan<- string         { return s.leave }

func (s *Service) CurrentTick() uint64 { return s.tick.Load() }

// Run drives the loop until ctx is canceled or Stop is called.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-s.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-s.inbox:
			pendingActions = append(pendingActions, env)
		case req := <-s.meshReq:
			s.handleMeshReq(req)
		case <-ticker.C:
			s.step(pendingJoins, pendingLeaves, pendingActions)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
		}
	}
}

func (s *Service) Stop() { close(s.stop) }

// Mesh returns the cached mesh for a chunk, served from the loop
// goroutine. ErrUnmeshed until the first extraction for that chunk has
// run.
func (s *Service) Mesh(ctx context.Context, pt grid.Point) (*mesh.Mesh, error) {
	req := meshReq{pt: pt, resp: make(chan meshResp, 1)}
	select {
	case s.meshReq <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp := <-req.resp:
		return resp.m, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) handleMeshReq(req meshReq) {
	m, err := s.meshFor(req.pt)
	req.resp <- meshResp{m: m, err: err}
}

func (s *Service) meshFor(pt grid.Point) (*mesh.Mesh, error) {
	if m, ok := s.meshes[pt]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("chunk (%d,%d,%d): %w", pt.X, pt.Y, pt.Z, ErrUnmeshed)
}
