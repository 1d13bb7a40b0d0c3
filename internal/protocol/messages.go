package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentName       string `json:"agent_name"`
	Channel         uint8  `json:"channel,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	AgentID         string      `json:"agent_id"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	ChunkWidth      int     `json:"chunk_width"`
	Dimensions      int     `json:"dimensions"`
	ResidencyRadius int     `json:"residency_radius"`
	ChunkScale      float64 `json:"chunk_scale"`
	TickRateHz      int     `json:"tick_rate_hz"`
}

// ACT (client -> server). A single envelope carries the two inbound
// streams: an optional agent move (chunk-grid units) and zero or more
// cell mutations, plus an optional request for a chunk's cached mesh.
type ActMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ActID           string     `json:"act_id,omitempty"`
	Move            *MoveReq   `json:"move,omitempty"`
	Writes          []WriteReq `json:"writes,omitempty"`
	MeshGet         *MeshGet   `json:"mesh_get,omitempty"`
}

type MoveReq struct {
	Pos [3]int `json:"pos"`
}

type WriteReq struct {
	Chunk [3]int `json:"chunk"`
	Cell  [3]int `json:"cell"`
	Value uint8  `json:"value"`
}

type MeshGet struct {
	Chunk [3]int `json:"chunk"`
}

// MESH (server -> client). Geometry for one chunk, plus the placement
// transform (uniform scale and world offset) the uploader needs. The
// payload is the meshcodec binary layout, zstd-compressed and
// base64-encoded.
type MeshMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	Chunk           [3]int     `json:"chunk"`
	Scale           float64    `json:"scale"`
	Offset          [3]float64 `json:"offset"`
	VertexCount     int        `json:"vertex_count"`
	IndexCount      int        `json:"index_count"`
	Encoding        string     `json:"encoding"`
	Payload         string     `json:"payload"`
}

// EVICT (server -> client)
type EvictMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Chunk           [3]int `json:"chunk"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActID           string `json:"act_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
