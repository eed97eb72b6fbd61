package model

// ServerStats is a point-in-time view of the log protocol listener.
type ServerStats struct {
	Accepted        int64         `json:"accepted"`
	Responded       int64         `json:"responded"`
	DeadlineExpired int64         `json:"deadline_expired"`
	ReadFailed      int64         `json:"read_failed"`
	WriteFailed     int64         `json:"write_failed"`
	ByStatus        map[int]int64 `json:"by_status"`
}
