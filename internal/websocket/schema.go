package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSnapshot Event = "snapshot"
	EventActivity Event = "activity"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// SnapshotResponse is the first frame on the monitor stream: every attempt
// on the tryout with its current status and score.
type SnapshotResponse struct {
	Event    Event         `json:"event"`
	TryoutID string        `json:"tryout_id"`
	Stats    SnapshotStats `json:"stats"`
	Attempts interface{}   `json:"attempts"`
}

// SnapshotStats aggregates attempt counts for the monitor header.
type SnapshotStats struct {
	TotalJoined     int `json:"total_joined"`
	TotalInProgress int `json:"total_in_progress"`
	TotalCompleted  int `json:"total_completed"`
}

// ActivityResponse forwards one live event from the Redis monitor channel.
// Payload is the raw JSON published by the workers; it is passed through
// without re-decoding.
type ActivityResponse struct {
	Event   Event       `json:"event"`
	Payload interface{} `json:"payload"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
