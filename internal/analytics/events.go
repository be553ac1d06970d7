package analytics

import "time"

type EventType string

const (
	EventDropSearch    EventType = "drop_search"
	EventMonsterSearch EventType = "monster_search"
	EventRewrite       EventType = "rewrite"
)

// QueryEvent describes one answered query.
type QueryEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Rewritten string    `json:"rewritten,omitempty"`
	Hits      int       `json:"hits"`
	Outcome   string    `json:"outcome"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Tracker receives query events. Track must not block.
type Tracker interface {
	Track(QueryEvent)
}

// Trackers fans an event out to every member.
type Trackers []Tracker

func (ts Trackers) Track(e QueryEvent) {
	for _, t := range ts {
		t.Track(e)
	}
}
