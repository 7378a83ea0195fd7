package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandler_ExposesRecordedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthAttempt("login", ResultFailure)
	c.RecordNewsWrite("create")
	c.WatcherConnected()

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain exposition format", ct)
	}

	body, _ := io.ReadAll(w.Body)
	for _, want := range []string{
		`amiot_auth_attempts_total{operation="login",result="failure"} 1`,
		`amiot_news_writes_total{operation="create"} 1`,
		`amiot_live_watchers 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("出力に %q が含まれていない:\n%s", want, body)
		}
	}
}
