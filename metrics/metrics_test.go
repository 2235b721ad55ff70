package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.SessionOpened()
	m.ConnectFailed()
	m.JoinTimedOut()
	m.AudioSent(10)
	m.SendFailed()
	m.MessageReceived("partial")
	m.DecodeFailed()
	m.Detected()
	m.SessionFinished(true, time.Second, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil handler status = %d, want 404", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	m := New(nil)

	m.SessionOpened()
	m.AudioSent(640)
	m.AudioSent(320)
	m.MessageReceived("partial")
	m.MessageReceived("partial")
	m.MessageReceived("text")
	m.Detected()
	m.SessionFinished(true, 200*time.Millisecond, time.Second)

	for _, tt := range []struct {
		name string
		got  float64
		want float64
	}{
		{"opened", testutil.ToFloat64(m.SessionsOpened), 1},
		{"active", testutil.ToFloat64(m.ActiveSessions), 0},
		{"frames", testutil.ToFloat64(m.AudioFrames), 2},
		{"bytes", testutil.ToFloat64(m.AudioBytes), 960},
		{"partials", testutil.ToFloat64(m.Messages.WithLabelValues("partial")), 2},
		{"texts", testutil.ToFloat64(m.Messages.WithLabelValues("text")), 1},
		{"detections", testutil.ToFloat64(m.Detections), 1},
		{"ok results", testutil.ToFloat64(m.Results.WithLabelValues("true")), 1},
		{"failed results", testutil.ToFloat64(m.Results.WithLabelValues("false")), 0},
	} {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestZeroTimingsNotObserved(t *testing.T) {
	m := New(nil)
	m.SessionOpened()
	m.SessionFinished(false, 0, 0)

	if n := testutil.CollectAndCount(m.RecordTime); n != 1 {
		t.Fatalf("collected %d histograms", n)
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "streamhwd_record_seconds_count 0") {
		t.Errorf("record histogram observed a zero timing:\n%s", body)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(nil)
	m.ConnectFailed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "streamhwd_connect_failures_total 1") {
		t.Errorf("connect failures missing from exposition:\n%s", body)
	}
}
