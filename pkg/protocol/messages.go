package protocol

// Download instructs the agent to begin retrieving a named file.
// The file name is the correlation key: there is at most one meaningful
// outstanding command per name, and a repeat command restarts the transfer.
type Download struct {
	File string `json:"file"`
}

// StatusUpdate reports a file's current transfer state. Produced by the
// agent for transfers it performs and rebroadcast by the server to every
// observer session.
type StatusUpdate struct {
	File   string `json:"file"`
	Status Status `json:"status"`
}

// AgentStatus tells observers whether an agent session is currently live.
type AgentStatus struct {
	Connected bool `json:"connected"`
}

// Error codes the server sends back on messages it rejects.
const (
	ErrCodeBadEnvelope     = "bad_envelope"
	ErrCodeBadPayload      = "bad_payload"
	ErrCodeUnsupportedType = "unsupported_type"
)

// Error represents an error message in the protocol. The server replies
// with one when it rejects an inbound message instead of silently dropping
// it, so a misbehaving peer can see why nothing happened.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
