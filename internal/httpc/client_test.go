package httpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient_Timeout(t *testing.T) {
	c := NewClient(3 * time.Second)
	if c.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", c.Timeout)
	}
}

func TestPostJSON(t *testing.T) {
	var got map[string]float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	resp, err := PostJSON(context.Background(), NewClient(time.Second), srv.URL, map[string]float64{"mm": 250})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got["mm"] != 250 {
		t.Errorf("body = %v", got)
	}
}

func TestGet_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Get(ctx, NewClient(time.Second), srv.URL); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestPostEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("x") != "12" || r.ContentLength > 0 {
			t.Errorf("unexpected request %s %d", r.URL, r.ContentLength)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	resp, err := PostEmpty(context.Background(), NewClient(time.Second), srv.URL+"/pos?x=12")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
