package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-rover/internal/log"
	"github.com/teslashibe/go-rover/pkg/judge"
	"github.com/teslashibe/go-rover/pkg/position"
	"github.com/teslashibe/go-rover/pkg/runlog"
	"github.com/teslashibe/go-rover/pkg/sim"
)

// nopJudge accepts everything.
type nopJudge struct{}

func (nopJudge) SubmitMarker(context.Context, judge.Submission) (int, error) {
	return http.StatusOK, nil
}
func (nopJudge) Status(context.Context) ([]int, error)                 { return nil, nil }
func (nopJudge) Worklist(context.Context) ([]int, error)               { return nil, nil }
func (nopJudge) ReportPosition(context.Context, float64, float64) error { return nil }

type rig struct {
	srv   *Server
	world *sim.World
	url   string
}

func newWorld(beacons map[int]r2.Point, delay time.Duration) *sim.World {
	cfg := sim.DefaultConfig()
	cfg.MotionDelay = delay
	if beacons != nil {
		cfg.Beacons = beacons
	}
	return sim.New(cfg)
}

func references(w map[int]r2.Point) map[int]r2.Point {
	refs := map[int]r2.Point{}
	for id, p := range w {
		if id >= 1 && id <= 4 {
			refs[id] = p
		}
	}
	return refs
}

func newRig(t *testing.T, cfg Config, world *sim.World, j Judge, opts ...func(*Deps)) *rig {
	t.Helper()
	if cfg.Key == "" {
		cfg.Key = "1234"
	}
	deps := Deps{
		Drive:    world,
		Camera:   world,
		Detector: world,
		Judge:    j,
		Pose:     position.NewStore(references(sim.DefaultConfig().Beacons)),
		Logger:   log.Discard(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(context.Background(), ln) }()

	t.Cleanup(func() {
		srv.Stop()
		select {
		case <-errc:
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})
	return &rig{srv: srv, world: world, url: "ws://" + ln.Addr().String() + "/"}
}

func (r *rig) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(r.url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, raw string) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readType reads until a message of type typ arrives, skipping the rest.
func readType(t *testing.T, ws *websocket.Conn, typ string, timeout time.Duration) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(timeout))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("bad frame %s: %v", data, err)
		}
		if m["type"] == typ {
			return m
		}
	}
}

func login(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	send(t, ws, `{"type":"key","value":"1234"}`)
	readType(t, ws, "connected", 2*time.Second)
}

func TestAuthGate(t *testing.T) {
	r := newRig(t, DefaultConfig(), newWorld(nil, 0), nopJudge{})
	ws := r.dial(t)

	send(t, ws, `{"type":"command","angle":45,"distance":0.5,"x":0.3,"y":0.4,"mode":2}`)
	if got := readType(t, ws, "error", 2*time.Second); got["error"] != "authentication required" {
		t.Errorf("unauthenticated command: %v", got)
	}
	if l, rt := r.world.Wheels(); l != 0 || rt != 0 {
		t.Errorf("drive moved before auth: %v %v", l, rt)
	}

	send(t, ws, `{"type":"key","value":"nope"}`)
	if got := readType(t, ws, "error", 2*time.Second); got["error"] != "invalid key" {
		t.Errorf("wrong key: %v", got)
	}

	send(t, ws, `{"type":"key","value":1234}`)
	readType(t, ws, "connected", 2*time.Second)

	send(t, ws, `{"type":"command","angle":45,"distance":0.5,"x":0.3,"y":0.4,"mode":2}`)
	got := readType(t, ws, "command", 2*time.Second)
	if got["status"] != "command received" || got["speed"] != 150.0 {
		t.Errorf("command reply = %v", got)
	}
	if l, rt := r.world.Wheels(); l != 90 || rt != 120 {
		t.Errorf("wheels = (%v, %v), want (90, 120)", l, rt)
	}
}

func TestWSPathAndBroadcastAfterAuth(t *testing.T) {
	r := newRig(t, DefaultConfig(), newWorld(nil, 0), nopJudge{})
	ws, _, err := websocket.DefaultDialer.Dial(strings.TrimSuffix(r.url, "/")+"/ws", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	login(t, ws)

	// Frames and battery are only broadcast when they change.
	if err := r.world.Move(context.Background(), 100); err != nil {
		t.Fatal(err)
	}
	if got := readType(t, ws, "battery", 2*time.Second); got["value"].(float64) >= 100 {
		t.Errorf("battery = %v, want drained", got)
	}
	readType(t, ws, "camera_frame", 2*time.Second)
}

func TestCommandRejectedInAutoMode(t *testing.T) {
	r := newRig(t, DefaultConfig(), newWorld(nil, 0), nopJudge{})
	ws := r.dial(t)
	login(t, ws)

	r.srv.State().TryStartAuto()
	send(t, ws, `{"type":"command","angle":90,"x":0.5,"y":0.5}`)
	if got := readType(t, ws, "error", 2*time.Second); got["error"] != "auto mode active" {
		t.Errorf("reply = %v", got)
	}

	r.srv.State().EndAuto()
	send(t, ws, `{"type":"command","angle":90,"x":0.5,"y":0.5}`)
	if got := readType(t, ws, "command", 2*time.Second); got["speed"] != 10000.0 {
		t.Errorf("default distance and mode: %v", got)
	}
}

func TestDispatchErrors(t *testing.T) {
	r := newRig(t, DefaultConfig(), newWorld(nil, 0), nopJudge{})
	ws := r.dial(t)
	login(t, ws)

	tests := []struct {
		input string
		want  string
	}{
		{`{"type":"dance"}`, "unknown message type: dance"},
		{`not json`, "invalid message: "},
		{`{"type":"command","angle":10}`, "command requires angle, x and y"},
		{`{"type":"command","angle":10,"x":1,"y":1,"mode":9}`, "invalid speed mode"},
		{`{"type":"key","value":"1234"}`, "already authenticated"},
	}
	for _, tt := range tests {
		send(t, ws, tt.input)
		got := readType(t, ws, "error", 2*time.Second)
		if msg, _ := got["error"].(string); !strings.Contains(msg, tt.want) {
			t.Errorf("%s: error = %q, want %q", tt.input, msg, tt.want)
		}
	}

	// Still usable.
	send(t, ws, `{"type":"command","angle":0,"distance":0,"x":0,"y":0}`)
	readType(t, ws, "command", 2*time.Second)
}

func TestSilenceStopsDrive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SilenceTimeout = 50 * time.Millisecond
	r := newRig(t, cfg, newWorld(nil, 0), nopJudge{})
	ws := r.dial(t)
	login(t, ws)

	send(t, ws, `{"type":"command","angle":90,"distance":1,"x":0.2,"y":0.2}`)
	readType(t, ws, "command", 2*time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for r.world.Stops() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("drive was not stopped after silence")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if l, rt := r.world.Wheels(); l != 0 || rt != 0 {
		t.Errorf("wheels = (%v, %v) after silence stop", l, rt)
	}
}

func TestStartAutoTwice(t *testing.T) {
	r := newRig(t, DefaultConfig(), newWorld(nil, time.Second), nopJudge{})
	ws := r.dial(t)
	login(t, ws)

	send(t, ws, `{"type":"start_auto","init_pos":{"x":-1000,"y":0}}`)
	readType(t, ws, "auto_started", 2*time.Second)
	send(t, ws, `{"type":"start_auto"}`)
	if got := readType(t, ws, "error", 2*time.Second); got["error"] != "auto mode already active" {
		t.Errorf("reply = %v", got)
	}
	if !r.srv.State().Running() {
		t.Error("course should be running")
	}
}

func TestStopServer(t *testing.T) {
	r := newRig(t, DefaultConfig(), newWorld(nil, 0), nopJudge{})
	ws := r.dial(t)
	login(t, ws)

	send(t, ws, `{"type":"stop_server"}`)
	readType(t, ws, "server_stopped", 2*time.Second)

	select {
	case <-r.srv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed")
	}

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				t.Fatal("connection was not closed")
			}
			break
		}
	}
	if r.world.Stops() == 0 {
		t.Error("drive should be stopped on shutdown")
	}
}

func TestAPIStatus(t *testing.T) {
	world := newWorld(nil, 0)
	srv, err := New(Config{Key: "1234"}, Deps{
		Drive:    world,
		Camera:   world,
		Detector: world,
		Judge:    nopJudge{},
		Pose:     position.NewStore(references(sim.DefaultConfig().Beacons)),
		Logger:   log.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}
	srv.State().AddCapture()

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Auto != "idle" || body.Captures != 1 || body.Navigator != "idle" || body.Clients != 0 {
		t.Errorf("status = %+v", body)
	}

	resp, err = srv.App().Test(httptest.NewRequest("GET", "/ws", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("plain GET /ws = %d, want 426", resp.StatusCode)
	}

	resp, err = srv.App().Test(httptest.NewRequest("GET", "/api/runs", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /api/runs without journal = %d, want 404", resp.StatusCode)
	}
}

func TestRunJournal(t *testing.T) {
	journal, err := runlog.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	cfg := DefaultConfig()
	cfg.CameraInterval = time.Millisecond
	cfg.Navigator.Attempts = 2
	cfg.Navigator.Polls = 1
	cfg.Navigator.PollInterval = time.Millisecond
	cfg.Navigator.SettleDelay = 0

	r := newRig(t, cfg, newWorld(nil, 0), nopJudge{}, func(d *Deps) { d.Journal = journal })
	ws := r.dial(t)
	login(t, ws)

	send(t, ws, `{"type":"start_auto","init_pos":{"x":-1000,"y":0}}`)
	readType(t, ws, "not_found", 10*time.Second)
	stopped := readType(t, ws, "auto_stopped", 5*time.Second)
	if _, ok := stopped["error"]; ok {
		t.Errorf("auto_stopped = %v, want no error", stopped)
	}

	var runs []runlog.Run
	deadline := time.Now().Add(2 * time.Second)
	for len(runs) == 0 && time.Now().Before(deadline) {
		resp, err := r.srv.App().Test(httptest.NewRequest("GET", "/api/runs?limit=5", nil))
		if err != nil {
			t.Fatal(err)
		}
		json.NewDecoder(resp.Body).Decode(&runs)
		if len(runs) == 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %+v, want 1", runs)
	}
	if runs[0].State != "done" || runs[0].StartX != -1000 || runs[0].Captures != 0 {
		t.Errorf("run = %+v", runs[0])
	}
}

func TestNew_Validation(t *testing.T) {
	world := newWorld(nil, 0)
	if _, err := New(Config{}, Deps{Drive: world}); err == nil {
		t.Error("expected error without key")
	}
	if _, err := New(Config{Key: "k"}, Deps{Drive: world, Camera: world, Detector: world}); err == nil {
		t.Error("expected error without judge")
	}
}

// judgeServer is a fake judging service.
type judgeServer struct {
	mu      sync.Mutex
	markers []string
	pos     int
}

func (j *judgeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/marker", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		j.mu.Lock()
		j.markers = append(j.markers, q.Get("id")+":"+q.Get("sector")+":"+q.Get("inner"))
		j.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"markers":[{"id":7}]}`))
	})
	mux.HandleFunc("/api/list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"markers":[11]}`))
	})
	mux.HandleFunc("/api/pos", func(w http.ResponseWriter, r *http.Request) {
		j.mu.Lock()
		j.pos++
		j.mu.Unlock()
	})
	return mux
}

func TestAutoRunEndToEnd(t *testing.T) {
	js := &judgeServer{}
	ts := httptest.NewServer(js.handler())
	defer ts.Close()

	jc, err := judge.New(ts.URL+"/api", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	beacons := map[int]r2.Point{
		1:  {X: 0, Y: 1500},
		2:  {X: 1500, Y: 0},
		3:  {X: 0, Y: -1500},
		4:  {X: -1500, Y: 0},
		7:  {X: -200, Y: 50},
		11: {X: -800, Y: -400},
	}
	cfg := DefaultConfig()
	cfg.CameraInterval = time.Millisecond
	cfg.CapturePoll = 5 * time.Millisecond
	cfg.TelemetryInterval = 10 * time.Millisecond
	cfg.Navigator.Polls = 1
	cfg.Navigator.PollInterval = time.Millisecond
	cfg.Navigator.SettleDelay = 0

	world := newWorld(beacons, 0)
	world.SetPose(position.Pose{X: -1000, Y: 0, Heading: 0})
	r := newRig(t, cfg, world, jc)
	ws := r.dial(t)
	login(t, ws)

	send(t, ws, `{"type":"start_auto","init_pos":{"x":-1000,"y":0}}`)
	readType(t, ws, "auto_started", 2*time.Second)

	first := readType(t, ws, "captured", 15*time.Second)
	if first["id"] != 7.0 || first["sector"] != "H" || first["inside"] != true {
		t.Errorf("first capture = %v", first)
	}
	second := readType(t, ws, "captured", 15*time.Second)
	if second["id"] != 11.0 || second["captures"] != 2.0 {
		t.Errorf("second capture = %v", second)
	}
	readType(t, ws, "finished", 5*time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for r.srv.State().AutoActive() {
		if time.Now().After(deadline) {
			t.Fatal("auto mode did not end")
		}
		time.Sleep(10 * time.Millisecond)
	}

	js.mu.Lock()
	markers := append([]string(nil), js.markers...)
	js.mu.Unlock()
	want := []string{"7:H:1", "11:G:0"}
	if strings.Join(markers, ",") != strings.Join(want, ",") {
		t.Errorf("markers = %v, want %v", markers, want)
	}

	if p := r.world.Pose(); p.Point().Norm() > 1 {
		t.Errorf("rover ended at %+v, want origin", p)
	}
	if r.srv.State().Running() {
		t.Error("running should be cleared after the course")
	}
}
