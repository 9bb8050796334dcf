package monitor

import "time"

// Messages exchanged by the monitor service. They travel as JSON.

type HeapRequest struct{}

// HeapResponse is a heap statistics snapshot.
type HeapResponse struct {
	SnapshotID string        `json:"snapshot_id"`
	Objects    int           `json:"objects"`
	Bytes      int64         `json:"bytes"`
	Limit      int64         `json:"limit"`
	Cycles     uint64        `json:"cycles"`
	Freed      uint64        `json:"freed"`
	LastPause  time.Duration `json:"last_pause_ns"`
	LastReason string        `json:"last_reason,omitempty"`
	Summary    string        `json:"summary"`
}

type ThreadsRequest struct{}

// ThreadInfo describes one VM thread.
type ThreadInfo struct {
	ID           uint32 `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	SuspendCount int    `json:"suspend_count"`
	Depth        int    `json:"depth"`
	// Top is the innermost frame's location, set for suspended threads.
	Top string `json:"top,omitempty"`
}

type ThreadsResponse struct {
	Threads []ThreadInfo `json:"threads"`
}

// ClassesRequest filters classes by descriptor prefix.
type ClassesRequest struct {
	Prefix string `json:"prefix,omitempty"`
}

type ClassInfo struct {
	Descriptor string `json:"descriptor"`
	Status     string `json:"status"`
	Super      string `json:"super,omitempty"`
	Fields     int    `json:"fields"`
	Methods    int    `json:"methods"`
}

type ClassesResponse struct {
	Classes []ClassInfo `json:"classes"`
}

type CollectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CollectResponse reports a forced collection.
type CollectResponse struct {
	FreedObjects int           `json:"freed_objects"`
	FreedBytes   int64         `json:"freed_bytes"`
	Heap         *HeapResponse `json:"heap"`
}

// ProfileRequest asks for the most invoked methods. Limit <= 0 means 20.
type ProfileRequest struct {
	Limit int `json:"limit,omitempty"`
}

// MethodProfile is one row of a profile.
type MethodProfile struct {
	Method      string `json:"method"`
	Invocations uint64 `json:"invocations"`
	Hot         bool   `json:"hot"`
}

type ProfileResponse struct {
	Methods      []MethodProfile `json:"methods"`
	TotalMethods int             `json:"total_methods"`
	HotMethods   int             `json:"hot_methods"`
	Invocations  uint64          `json:"invocations"`
}
