package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"terramesh.dev/internal/chunk"
	"terramesh.dev/internal/mesh"
	"terramesh.dev/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	actSchema := compile("act.schema.json")
	meshSchema := compile("mesh.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "agent_name":"bot1",
	  "channel":0
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "agent_id":"A1",
	  "world_params":{
	    "chunk_width":64,
	    "dimensions":2,
	    "residency_radius":2,
	    "chunk_scale":64,
	    "tick_rate_hz":5
	  }
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var act any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "act_id":"ACT_1",
	  "move":{"pos":[1,0,0]},
	  "writes":[{"chunk":[1,0,0],"cell":[3,7,0],"value":200}],
	  "mesh_get":{"chunk":[1,0,0]}
	}`), &act)
	validate(actSchema, act)

	// A MESH message built by the real pipeline must satisfy its schema.
	c, err := chunk.New[uint8](4, 2)
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}
	m, err := mesh.Extract(c)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	payload, err := protocol.EncodeMeshPayload(m)
	if err != nil {
		t.Fatalf("EncodeMeshPayload: %v", err)
	}
	raw, err := json.Marshal(protocol.MeshMsg{
		Type:            protocol.TypeMesh,
		ProtocolVersion: protocol.Version,
		Tick:            7,
		Chunk:           [3]int{1, 0, 0},
		Scale:           64,
		Offset:          [3]float64{64, 0, 0},
		VertexCount:     m.VertexCount(),
		IndexCount:      len(m.Indices),
		Encoding:        protocol.EncodingZstd,
		Payload:         payload,
	})
	if err != nil {
		t.Fatalf("marshal mesh msg: %v", err)
	}
	var meshMsg any
	_ = json.Unmarshal(raw, &meshMsg)
	validate(meshSchema, meshMsg)
}

func TestSchemas_RejectBadAct(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "act.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var bad any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "writes":[{"chunk":[1,0,0],"cell":[3,7,0],"value":300}]
	}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatal("value 300 passed a uint8 schema")
	}
}
