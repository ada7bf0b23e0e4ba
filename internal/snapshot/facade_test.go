package snapshot

import (
	"testing"
	"time"

	"mqtt-trade-relay/config"
	"mqtt-trade-relay/internal/liveness"
	"mqtt-trade-relay/internal/logger"
	"mqtt-trade-relay/internal/sink"
)

func newTestFacade(t *testing.T) (*Facade, *liveness.Tracker, *Store) {
	t.Helper()
	log, err := logger.NewLogger(&config.LogConfig{
		Level:      "debug",
		OutputPath: "stdout",
		Encoding:   "console",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	tracker := liveness.NewTracker(90*time.Second, 30*time.Second, sink.Discard{}, log, nil)
	store := NewStore()
	return NewFacade(tracker, store), tracker, store
}

func TestStatusBeforeAnyHeartbeat(t *testing.T) {
	facade, _, _ := newTestFacade(t)

	view, ok := facade.Status()
	if ok {
		t.Error("Status() ok = true, want no-data sentinel before first heartbeat")
	}
	// The sentinel reports unknown, never offline.
	if view.Status != string(liveness.StatusUnknown) {
		t.Errorf("Status = %v, want unknown", view.Status)
	}
}

func TestStatusAfterHeartbeat(t *testing.T) {
	facade, tracker, _ := newTestFacade(t)

	hb := time.Unix(1700000000, 0)
	tracker.RecordHeartbeat(hb, map[string]interface{}{"open_positions": 2.0})
	facade.now = func() time.Time { return hb.Add(45 * time.Second) }

	view, ok := facade.Status()
	if !ok {
		t.Fatal("Status() ok = false after heartbeat")
	}
	if view.Status != string(liveness.StatusOnline) {
		t.Errorf("Status = %v, want online", view.Status)
	}
	if view.LastHeartbeat != hb.Unix() {
		t.Errorf("LastHeartbeat = %v, want %v", view.LastHeartbeat, hb.Unix())
	}
	if view.SecondsSinceHeartbeat != 45 {
		t.Errorf("SecondsSinceHeartbeat = %v, want 45", view.SecondsSinceHeartbeat)
	}
	if view.Heartbeat["open_positions"] != 2.0 {
		t.Errorf("Heartbeat fields = %v, want open_positions carried", view.Heartbeat)
	}
}

func TestBalanceAndStatsPassThrough(t *testing.T) {
	facade, _, store := newTestFacade(t)

	if _, ok := facade.Balance(); ok {
		t.Error("Balance() ok = true, want false before data")
	}
	if _, ok := facade.Stats(); ok {
		t.Error("Stats() ok = true, want false before data")
	}

	store.SetBalance(time.Unix(1, 0), map[string]interface{}{"balance": 10.0})
	store.SetStats(time.Unix(2, 0), map[string]interface{}{"total_trades": 3.0})

	if snap, ok := facade.Balance(); !ok || snap.Fields["balance"] != 10.0 {
		t.Errorf("Balance() = %v, %v", snap, ok)
	}
	if snap, ok := facade.Stats(); !ok || snap.Fields["total_trades"] != 3.0 {
		t.Errorf("Stats() = %v, %v", snap, ok)
	}
}
