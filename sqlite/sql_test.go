package sqlite

import (
	"fmt"
	"testing"
	"time"

	"github.com/hoshinonyaruko/snake-torus/structs"
)

func testDSN(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
}

func TestRecordAndTopResults(t *testing.T) {
	db, err := Open(testDSN(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := []structs.Result{
		{GameID: "a", Score: 3, Length: 4, Ticks: 40, Cause: structs.CauseSelf, Food: 2, Hazards: 1, FinishedAt: base},
		{GameID: "b", Score: 9, Length: 10, Ticks: 90, Cause: structs.CausePoison, Food: 5, Hazards: 5, FinishedAt: base.Add(time.Minute)},
		{GameID: "c", Score: 3, Length: 4, Ticks: 12, Cause: structs.CauseFire, Food: 1, Hazards: 2, FinishedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range rows {
		if err := RecordResult(db, r); err != nil {
			t.Fatalf("RecordResult(%s): %v", r.GameID, err)
		}
	}

	got, err := TopResults(db, 10)
	if err != nil {
		t.Fatalf("TopResults: %v", err)
	}
	order := []string{"b", "a", "c"}
	if len(got) != len(order) {
		t.Fatalf("got %d results, want %d", len(got), len(order))
	}
	for i, id := range order {
		if got[i].GameID != id {
			t.Fatalf("result %d = %q, want %q", i, got[i].GameID, id)
		}
	}
	if got[0].Cause != structs.CausePoison || got[0].Length != 10 || !got[0].FinishedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("row mismatch: %+v", got[0])
	}

	top, err := TopResults(db, 1)
	if err != nil {
		t.Fatalf("TopResults: %v", err)
	}
	if len(top) != 1 || top[0].GameID != "b" {
		t.Fatalf("limit 1 = %+v", top)
	}
}

func TestRecordResultReplacesSameGame(t *testing.T) {
	db, err := Open(testDSN(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	now := time.Now()
	if err := RecordResult(db, structs.Result{GameID: "x", Score: 1, FinishedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := RecordResult(db, structs.Result{GameID: "x", Score: 2, FinishedAt: now}); err != nil {
		t.Fatal(err)
	}
	got, err := TopResults(db, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Score != 2 {
		t.Fatalf("results = %+v", got)
	}
}
