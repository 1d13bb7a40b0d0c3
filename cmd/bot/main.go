// A demo agent: joins the terrain service, wanders on the chunk grid,
// writes the occasional height value and logs the meshes it receives.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"terramesh.dev/internal/protocol"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name    = flag.String("name", "bot", "agent name")
		channel = flag.Int("channel", 0, "terrain channel (layer)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
		Channel:         uint8(*channel),
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	// The wander goroutine owns all writes after the handshake; it
	// starts once the reader hands over the WELCOME params.
	welcomeCh := make(chan protocol.WelcomeMsg, 1)
	go func() {
		w := <-welcomeCh
		chunkWidth := w.WorldParams.ChunkWidth

		var pos [3]int
		actSeq := 0
		wander := time.NewTicker(2 * time.Second)
		defer wander.Stop()
		for range wander.C {
			pos[rand.Intn(2)] += rand.Intn(3) - 1
			actSeq++
			act := protocol.ActMsg{
				Type:            protocol.TypeAct,
				ProtocolVersion: protocol.Version,
				ActID:           fmt.Sprintf("ACT_%d", actSeq),
				Move:            &protocol.MoveReq{Pos: pos},
			}
			if chunkWidth > 0 && rand.Intn(3) == 0 {
				act.Writes = []protocol.WriteReq{{
					Chunk: pos,
					Cell:  [3]int{rand.Intn(chunkWidth), rand.Intn(chunkWidth), 0},
					Value: uint8(rand.Intn(256)),
				}}
			}
			if err := conn.WriteJSON(act); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME agent_id=%s chunk_width=%d radius=%d",
				w.AgentID, w.WorldParams.ChunkWidth, w.WorldParams.ResidencyRadius)
			select {
			case welcomeCh <- w:
			default:
			}

		case protocol.TypeMesh:
			var mm protocol.MeshMsg
			if err := json.Unmarshal(msg, &mm); err != nil {
				continue
			}
			m, err := protocol.DecodeMeshPayload(mm.Payload)
			if err != nil {
				logger.Printf("MESH chunk=%v decode failed: %v", mm.Chunk, err)
				continue
			}
			logger.Printf("MESH chunk=%v tick=%d vertices=%d indices=%d offset=%v",
				mm.Chunk, mm.Tick, m.VertexCount(), len(m.Indices), mm.Offset)

		case protocol.TypeEvict:
			var ev protocol.EvictMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			logger.Printf("EVICT chunk=%v", ev.Chunk)

		case protocol.TypeError:
			var em protocol.ErrorMsg
			if err := json.Unmarshal(msg, &em); err != nil {
				continue
			}
			logger.Printf("ERROR code=%s msg=%s", em.Code, em.Message)
		}
	}
}
