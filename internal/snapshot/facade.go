package snapshot

import (
	"time"

	"mqtt-trade-relay/internal/liveness"
)

// StatusView is the answer to a status query.
type StatusView struct {
	Status                string                 `json:"status"`
	LastHeartbeat         int64                  `json:"last_heartbeat"`
	SecondsSinceHeartbeat int64                  `json:"seconds_since_heartbeat"`
	Heartbeat             map[string]interface{} `json:"heartbeat,omitempty"`
}

// Facade is the synchronous read surface for query callers. It only reads
// already-published state and never blocks on ingestion.
type Facade struct {
	tracker *liveness.Tracker
	store   *Store
	now     func() time.Time
}

func NewFacade(tracker *liveness.Tracker, store *Store) *Facade {
	return &Facade{
		tracker: tracker,
		store:   store,
		now:     time.Now,
	}
}

// Status reports the current liveness view. ok is false while no heartbeat
// has ever been observed; callers must render that as "no data", not offline.
func (f *Facade) Status() (StatusView, bool) {
	state := f.tracker.Snapshot()
	if state.Status == liveness.StatusUnknown {
		return StatusView{Status: string(liveness.StatusUnknown)}, false
	}

	return StatusView{
		Status:                string(state.Status),
		LastHeartbeat:         state.LastHeartbeat.Unix(),
		SecondsSinceHeartbeat: int64(f.now().Sub(state.LastHeartbeat).Seconds()),
		Heartbeat:             state.HeartbeatFields,
	}, true
}

// Balance returns the latest balance snapshot, ok=false before the first one.
func (f *Facade) Balance() (Snapshot, bool) {
	return f.store.Balance()
}

// Stats returns the latest session-stats snapshot, ok=false before the first one.
func (f *Facade) Stats() (Snapshot, bool) {
	return f.store.Stats()
}
