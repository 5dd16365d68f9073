package protocol

// Message type constants for protocol envelopes.
const (
	TypeDownload     = "download"
	TypeStatusUpdate = "status_update"
	TypeAgentStatus  = "agent_status"
	TypeError        = "error"
)

// Status is the server-observed transfer state of a single file.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusComplete, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s ends a download attempt.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}
