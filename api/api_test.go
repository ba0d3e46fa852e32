package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoshinonyaruko/snake-torus/config"
	"github.com/hoshinonyaruko/snake-torus/scheduler"
	"github.com/hoshinonyaruko/snake-torus/snake"
	"github.com/hoshinonyaruko/snake-torus/sqlite"
	"github.com/hoshinonyaruko/snake-torus/structs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	*Server
	router *gin.Engine
}

func newTestServer(t *testing.T, gridSize int, interval time.Duration) *testServer {
	t.Helper()
	return newTestServerWith(t, snake.Options{GridSize: gridSize}, interval)
}

func newTestServerWith(t *testing.T, opts snake.Options, interval time.Duration) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.GridSize = opts.GridSize

	n := 0
	opts.Rand = rand.New(rand.NewSource(3))
	opts.NewID = func() string {
		n++
		return fmt.Sprintf("g%d", n)
	}
	engine, err := snake.New(opts)
	if err != nil {
		t.Fatalf("snake.New: %v", err)
	}
	db, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	sched := scheduler.New(engine, interval)
	t.Cleanup(func() {
		cancel()
		sched.Stop()
	})
	s := NewServer(ctx, cfg, sched, db, nil)
	return &testServer{Server: s, router: s.Router()}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) stateResponse {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var st stateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

func TestStateBeforeStart(t *testing.T) {
	ts := newTestServer(t, 10, 0)
	st := decodeState(t, ts.do(t, http.MethodGet, "/state", ""))
	if st.Phase != structs.PhaseSetup {
		t.Fatalf("phase = %s, want setup", st.Phase)
	}
	if st.CellSize != 20 || st.GridSize != 10 {
		t.Fatalf("cell/grid = %d/%d", st.CellSize, st.GridSize)
	}
	if len(st.Snake) != 1 || st.Snake[0] != (structs.Coord{X: 5, Y: 5}) {
		t.Fatalf("snake = %v", st.Snake)
	}
}

func TestStartAndStep(t *testing.T) {
	ts := newTestServer(t, 10, 0)
	st := decodeState(t, ts.do(t, http.MethodPost, "/start", `{"food":1,"hazards":0}`))
	if st.Phase != structs.PhaseActive || len(st.Food) != 1 || len(st.Hazards) != 0 {
		t.Fatalf("after start: %+v", st.Snapshot)
	}
	if st.GameID != "g1" {
		t.Fatalf("game id = %q", st.GameID)
	}

	w := ts.do(t, http.MethodGet, "/update-direction?direction=down", "")
	if w.Code != http.StatusOK {
		t.Fatalf("update-direction status = %d", w.Code)
	}
	st = decodeState(t, ts.do(t, http.MethodPost, "/step", ""))
	if st.Tick != 1 || st.Direction != structs.Down {
		t.Fatalf("after step: tick %d dir %v", st.Tick, st.Direction)
	}
	if st.Head() != (structs.Coord{X: 5, Y: 6}) {
		t.Fatalf("head = %v, want (5,6)", st.Head())
	}
}

func TestStartDefaultsAndClamp(t *testing.T) {
	ts := newTestServer(t, 10, 0)
	st := decodeState(t, ts.do(t, http.MethodPost, "/start", ""))
	if st.Settings != (structs.Settings{Food: 1, Hazards: 3}) {
		t.Fatalf("default settings = %+v", st.Settings)
	}
	st = decodeState(t, ts.do(t, http.MethodPost, "/start", `{"food":99,"hazards":-4}`))
	if st.Settings != (structs.Settings{Food: 10, Hazards: 0}) {
		t.Fatalf("clamped settings = %+v", st.Settings)
	}
	if st.GameID != "g2" {
		t.Fatalf("start while active should begin a fresh game, id = %q", st.GameID)
	}
}

func TestStartErrors(t *testing.T) {
	ts := newTestServer(t, 3, 0)
	if w := ts.do(t, http.MethodPost, "/start", `{"food":`); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", w.Code)
	}
	// 5 + 4 + 1 cells do not fit on a 3x3 grid
	if w := ts.do(t, http.MethodPost, "/start", `{"food":5,"hazards":4}`); w.Code != http.StatusBadRequest {
		t.Fatalf("crowded start status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestStartRejectsOverOccupiedGrid(t *testing.T) {
	ts := newTestServerWith(t, snake.Options{GridSize: 10, MaxOccupancy: 0.1}, 0)
	w := ts.do(t, http.MethodPost, "/start", `{"food":10,"hazards":5}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	st := decodeState(t, ts.do(t, http.MethodGet, "/state", ""))
	if st.Phase != structs.PhaseSetup {
		t.Fatalf("phase = %s after refused start", st.Phase)
	}
}

func TestUpdateDirectionValidation(t *testing.T) {
	ts := newTestServer(t, 10, 0)
	for _, path := range []string{"/update-direction", "/update-direction?direction=north"} {
		if w := ts.do(t, http.MethodGet, path, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("%s status = %d", path, w.Code)
		}
	}
}

func TestPointer(t *testing.T) {
	ts := newTestServer(t, 10, 0)
	// head (5,5) has its centre at (110,110) with 20px cells
	w := ts.do(t, http.MethodPost, "/pointer", `{"x":110,"y":10}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Intent != "up" {
		t.Fatalf("intent = %q, want up", out.Intent)
	}
	if w := ts.do(t, http.MethodPost, "/pointer", `{"x":3}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing y status = %d", w.Code)
	}
}

func TestStepConflictsWithTicker(t *testing.T) {
	ts := newTestServer(t, 10, time.Hour)
	st := decodeState(t, ts.do(t, http.MethodPost, "/start", `{"food":1,"hazards":0}`))
	if !st.Running {
		t.Fatalf("ticker not running after start")
	}
	if w := ts.do(t, http.MethodPost, "/step", ""); w.Code != http.StatusConflict {
		t.Fatalf("step while running status = %d", w.Code)
	}
	st = decodeState(t, ts.do(t, http.MethodPost, "/stop", ""))
	if st.Running {
		t.Fatalf("ticker still running after stop")
	}
	st = decodeState(t, ts.do(t, http.MethodPost, "/step", ""))
	if st.Tick != 1 {
		t.Fatalf("tick = %d after manual step", st.Tick)
	}
}

// playUntilOver circles a 2x2 board, which always ends in a hazard or a full board.
func playUntilOver(t *testing.T, ts *testServer) stateResponse {
	t.Helper()
	dirs := []string{"right", "down"}
	for i := 0; i < 50; i++ {
		ts.do(t, http.MethodGet, "/update-direction?direction="+dirs[i%2], "")
		st := decodeState(t, ts.do(t, http.MethodPost, "/step", ""))
		if st.Phase == structs.PhaseOver {
			return st
		}
	}
	t.Fatalf("game did not end")
	return stateResponse{}
}

func TestGameOverRecordsResultAndRestarts(t *testing.T) {
	ts := newTestServer(t, 2, 0)
	if w := ts.do(t, http.MethodPost, "/restart", ""); w.Code != http.StatusConflict {
		t.Fatalf("restart before over status = %d", w.Code)
	}
	decodeState(t, ts.do(t, http.MethodPost, "/start", `{"food":1,"hazards":1}`))
	over := playUntilOver(t, ts)
	if over.Cause == structs.CauseNone {
		t.Fatalf("over without cause")
	}

	w := ts.do(t, http.MethodGet, "/results?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("results status = %d", w.Code)
	}
	var out struct {
		Results []structs.Result `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 1 || out.Results[0].GameID != "g1" || out.Results[0].Cause != over.Cause {
		t.Fatalf("results = %+v", out.Results)
	}

	st := decodeState(t, ts.do(t, http.MethodPost, "/restart", ""))
	if st.Phase != structs.PhaseActive || st.Settings != (structs.Settings{Food: 1, Hazards: 1}) {
		t.Fatalf("restart: phase %s settings %+v", st.Phase, st.Settings)
	}

	ts.cfg.RestartToSetup = true
	playUntilOver(t, ts)
	st = decodeState(t, ts.do(t, http.MethodPost, "/restart", ""))
	if st.Phase != structs.PhaseSetup {
		t.Fatalf("restart_to_setup phase = %s", st.Phase)
	}
}

func TestResultsLimitValidation(t *testing.T) {
	ts := newTestServer(t, 10, 0)
	for _, q := range []string{"0", "101", "ten"} {
		if w := ts.do(t, http.MethodGet, "/results?limit="+q, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s status = %d", q, w.Code)
		}
	}
}

func TestResetReturnsSetup(t *testing.T) {
	ts := newTestServer(t, 10, 0)
	decodeState(t, ts.do(t, http.MethodPost, "/start", `{"food":2,"hazards":2}`))
	st := decodeState(t, ts.do(t, http.MethodPost, "/reset", ""))
	if st.Phase != structs.PhaseSetup || len(st.Food) != 0 || st.GameID != "" {
		t.Fatalf("after reset: %+v", st.Snapshot)
	}
}

func TestRenderMap(t *testing.T) {
	ts := newTestServer(t, 10, 0)
	decodeState(t, ts.do(t, http.MethodPost, "/start", `{"food":2,"hazards":2}`))
	w := ts.do(t, http.MethodGet, "/render-map", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != 200 {
		t.Fatalf("width = %d, want 200", img.Bounds().Dx())
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, 10, 0)
	w := ts.do(t, http.MethodGet, "/state", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}
}
