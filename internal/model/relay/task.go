package relay

import "time"

// Status is the phase of a relay task.
type Status string

const (
	// StatusWaiting is reported for handles the registry does not know about.
	StatusWaiting Status = "Waiting"
	// StatusInitializing means the task is allocated and the relay is preparing.
	StatusInitializing Status = "Initializing"
	// StatusStreaming means bytes are flowing from the downloader to the destination.
	StatusStreaming Status = "Streaming"
	// StatusCompleted means the destination accepted the upload.
	StatusCompleted Status = "Completed"
	// StatusFailed means the relay stopped with an error.
	StatusFailed Status = "Failed"
)

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions can follow s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress is a point-in-time snapshot of a task as published to observers.
type Progress struct {
	TaskID    string    `json:"taskId,omitempty"`
	Status    Status    `json:"status"`
	Percent   int       `json:"percent"`
	Error     string    `json:"error,omitempty"`
	Bytes     int64     `json:"bytes"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Waiting returns the default snapshot for an unknown task handle.
func Waiting(taskID string) Progress {
	return Progress{TaskID: taskID, Status: StatusWaiting}
}
