package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRegistry_RegistersMetrics(t *testing.T) {
	r := NewRegistry()

	r.WSMessages.WithLabelValues("book").Add(5)
	r.SeqGaps.WithLabelValues("trades").Inc()
	r.ConnState.WithLabelValues("0").Set(1)
	r.PollCycles.Inc()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	out := string(body)
	for _, want := range []string{
		`gatherer_ws_messages_total{channel="book"} 5`,
		`gatherer_seq_gaps_total{channel="trades"} 1`,
		`gatherer_connection_up{conn_id="0"} 1`,
		`gatherer_poll_cycles_total 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewRegistry_Isolated(t *testing.T) {
	// Two registries must not collide on registration.
	a := NewRegistry()
	b := NewRegistry()

	a.PollCycles.Inc()
	b.PollCycles.Inc()
	b.PollCycles.Inc()

	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "gatherer_poll_cycles_total 2") {
		t.Errorf("registry b should report 2 poll cycles")
	}
}
