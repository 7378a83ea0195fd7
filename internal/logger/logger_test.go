package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("JSONとして解析できない: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestSetup_WritesJSONWithStandardFields(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf).Warn("watch closed", slog.String("owner_id", "u-1"))

	entry := decodeEntry(t, &buf)
	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("%q フィールドがない: %v", key, entry)
		}
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if entry["msg"] != "watch closed" {
		t.Errorf("msg = %v, want %q", entry["msg"], "watch closed")
	}
}

func TestSetup_StructuredAttributes(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf).Info("seed imported",
		slog.String("user_id", "u-123"),
		slog.String("news_id", "n-456"),
		slog.String("source", "https://example.com/rss.xml"),
		slog.Int("items_count", 25),
		slog.Bool("is_user_created", true),
	)

	entry := decodeEntry(t, &buf)
	want := map[string]interface{}{
		"user_id":         "u-123",
		"news_id":         "n-456",
		"source":          "https://example.com/rss.xml",
		"items_count":     float64(25),
		"is_user_created": true,
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	SetupDefault(&buf)

	slog.Info("global test", slog.String("test_key", "test_val"))

	entry := decodeEntry(t, &buf)
	if entry["msg"] != "global test" || entry["test_key"] != "test_val" {
		t.Errorf("entry = %v", entry)
	}
}

func TestSetLevel_FiltersBelowLevel(t *testing.T) {
	defer SetLevel(Level())

	var buf bytes.Buffer
	l := Setup(&buf)

	SetLevel(slog.LevelWarn)
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("warnレベルではinfoを出力しない: %s", buf.String())
	}

	SetLevel(slog.LevelDebug)
	l.Debug("kept")
	if buf.Len() == 0 {
		t.Fatal("レベルを下げた後はdebugを出力する")
	}
	if Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want %v", Level(), slog.LevelDebug)
	}
}
