package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c.Registry() == nil {
		t.Fatal("expected non-nil registry")
	}
	if _, err := c.Registry().Gather(); err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
}

func TestObserveRead(t *testing.T) {
	c := NewCollector()

	c.ObserveRead("getStakeInfo", 20*time.Millisecond, nil)
	c.ObserveRead("getStakeInfo", 40*time.Millisecond, errors.New("timeout"))
	c.ObserveRead("totalStaked", 10*time.Millisecond, nil)

	if v := getCounterValue(t, c.reads, "getStakeInfo"); v != 2 {
		t.Errorf("expected 2 getStakeInfo reads, got %f", v)
	}
	if v := getCounterValue(t, c.readErrors, "getStakeInfo"); v != 1 {
		t.Errorf("expected 1 getStakeInfo error, got %f", v)
	}
	if v := getCounterValue(t, c.readErrors, "totalStaked"); v != 0 {
		t.Errorf("expected 0 totalStaked errors, got %f", v)
	}

	s := c.Summary()
	if s.Reads != 3 || s.ReadErrors != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
	if s.AvgReadLatency != (70*time.Millisecond)/3 {
		t.Errorf("avg latency = %v", s.AvgReadLatency)
	}
	if rate := s.ErrorRate(); rate < 0.33 || rate > 0.34 {
		t.Errorf("error rate = %f", rate)
	}
}

func TestObservePhase(t *testing.T) {
	c := NewCollector()

	for _, phase := range []string{"submitting", "awaiting_confirmation", "confirmed"} {
		c.ObservePhase("stake", phase)
	}
	c.ObservePhase("claim", "submitting")
	c.ObservePhase("claim", "failed")

	if v := getCounterValue(t, c.txPhases, "stake", "confirmed"); v != 1 {
		t.Errorf("expected 1 confirmed stake, got %f", v)
	}
	if v := getCounterValue(t, c.txPhases, "claim", "failed"); v != 1 {
		t.Errorf("expected 1 failed claim, got %f", v)
	}
	s := c.Summary()
	if s.ConfirmedTxs != 1 || s.FailedTxs != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestGauges(t *testing.T) {
	c := NewCollector()

	c.SetConnected(true)
	if v := getGaugeValue(t, c.connected); v != 1 {
		t.Errorf("expected connected 1, got %f", v)
	}
	c.SetConnected(false)
	if v := getGaugeValue(t, c.connected); v != 0 {
		t.Errorf("expected connected 0, got %f", v)
	}

	at := time.Unix(1700000000, 0)
	c.MarkRefreshed(at)
	if v := getGaugeValue(t, c.lastRefresh); v != 1700000000 {
		t.Errorf("unexpected last refresh %f", v)
	}
}

func TestSummaryEmpty(t *testing.T) {
	s := NewCollector().Summary()
	if s.ErrorRate() != 0 || s.AvgReadLatency != 0 {
		t.Errorf("unexpected empty summary %+v", s)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.ObserveRead("totalStaked", 5*time.Millisecond, nil)
	c.ObservePhase("compound", "confirmed")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`stakedash_reads_total{query="totalStaked"} 1`,
		`stakedash_tx_phase_total{action="compound",phase="confirmed"} 1`,
		"stakedash_read_duration_seconds_bucket",
		"stakedash_uptime_seconds",
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skip("cannot listen on loopback")
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewCollector()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx, addr) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("metrics endpoint never came up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func getCounterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(metric); err != nil {
		t.Fatalf("failed to read counter metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		t.Fatalf("failed to read gauge metric: %v", err)
	}
	return metric.GetGauge().GetValue()
}
