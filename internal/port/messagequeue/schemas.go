package messagequeue

import "time"

// SessionStatusPayload is the schema for sessions.status messages.
type SessionStatusPayload struct {
	EventID      string    `json:"event_id"`
	SessionID    int64     `json:"session_id"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	VSCodePort   int       `json:"vscode_port,omitempty"`
	At           time.Time `json:"at"`
}

// SessionLogPayload is the schema for sessions.log messages.
type SessionLogPayload struct {
	EventID   string    `json:"event_id"`
	SessionID int64     `json:"session_id"`
	LogID     int64     `json:"log_id"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}
