package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"terramesh.dev/internal/protocol"
	"terramesh.dev/internal/terrain"
)

func startTestServer(t *testing.T) (*httptest.Server, *terrain.Service) {
	t.Helper()
	svc, err := terrain.New(terrain.Config{
		ChunkWidth:      4,
		Dimensions:      2,
		ResidencyRadius: 1,
		TickRateHz:      50,
		RemeshPerTick:   64,
	})
	if err != nil {
		t.Fatalf("terrain.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = svc.Run(ctx) }()

	logger := log.New(os.Stdout, "[ws-test] ", log.LstdFlags)
	ts := httptest.NewServer(NewServer(svc, logger).Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return ts, svc
}

func dialTest(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHandshake_HelloWelcome(t *testing.T) {
	ts, _ := startTestServer(t)
	conn := dialTest(t, ts)

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       "itest",
	}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("send HELLO: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WELCOME: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome || welcome.AgentID == "" {
		t.Fatalf("welcome = %+v", welcome)
	}
	if welcome.WorldParams.ChunkWidth != 4 {
		t.Fatalf("chunk_width = %d, want 4", welcome.WorldParams.ChunkWidth)
	}
}

func TestHandshake_RejectsBadVersion(t *testing.T) {
	ts, _ := startTestServer(t)
	conn := dialTest(t, ts)

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: "0.0",
		AgentName:       "itest",
	}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("send HELLO: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection survived bad protocol_version")
	}
}

func TestActFlow_MoveProducesMeshPush(t *testing.T) {
	ts, _ := startTestServer(t)
	conn := dialTest(t, ts)

	if err := conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       "itest",
	}); err != nil {
		t.Fatalf("send HELLO: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil { // WELCOME
		t.Fatalf("read WELCOME: %v", err)
	}

	if err := conn.WriteJSON(protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Move:            &protocol.MoveReq{Pos: [3]int{0, 0, 0}},
	}); err != nil {
		t.Fatalf("send ACT: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read MESH: %v", err)
	}
	var mm protocol.MeshMsg
	if err := json.Unmarshal(msg, &mm); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if mm.Type != protocol.TypeMesh {
		t.Fatalf("first push type = %s, want MESH", mm.Type)
	}
	m, err := protocol.DecodeMeshPayload(mm.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if m.VertexCount() != mm.VertexCount || len(m.Indices) != mm.IndexCount {
		t.Fatalf("payload counts %d/%d disagree with header %d/%d",
			m.VertexCount(), len(m.Indices), mm.VertexCount, mm.IndexCount)
	}
}
