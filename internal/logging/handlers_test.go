package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"gameshelf/internal/services"
)

func TestFanoutHandlerFiltersNilAndUnwrapsSingle(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler for all nil handlers")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected single handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsPerHandlerLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h).With("component", "scan")
	logger.Debug("debug only")
	logger.Info("both")

	if strings.Contains(infoBuf.String(), "debug only") {
		t.Fatal("info handler should not receive debug records")
	}
	if !strings.Contains(debugBuf.String(), "debug only") || !strings.Contains(debugBuf.String(), "both") {
		t.Fatalf("debug handler missing records: %s", debugBuf.String())
	}
	if !strings.Contains(infoBuf.String(), `"component":"scan"`) {
		t.Fatalf("expected attrs propagated: %s", infoBuf.String())
	}
	if h.Enabled(context.Background(), slog.LevelDebug-4) {
		t.Fatal("no handler accepts trace level")
	}
}

func TestStampHandlerAddsSessionAndContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newStampHandler(slog.NewJSONHandler(&buf, nil), "session-abc")).With("extra", "value")
	ctx := services.WithScanID(services.WithUnitID(context.Background(), 7), "scan-1")
	logger.InfoContext(ctx, "hello")
	out := buf.String()
	for _, want := range []string{`"session_id":"session-abc"`, `"extra":"value"`, `"unit_id":7`, `"scan_id":"scan-1"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
	if _, ok := newStampHandler(nil, "x").(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when next is nil")
	}
}

func TestStampHandlerSkipsBoundKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newStampHandler(slog.NewJSONHandler(&buf, nil), ""))
	ctx := services.WithUnitID(context.Background(), 7)
	WithContext(ctx, logger).InfoContext(ctx, "once")
	if n := strings.Count(buf.String(), `"unit_id"`); n != 1 {
		t.Fatalf("unit_id written %d times: %s", n, buf.String())
	}
	if strings.Contains(buf.String(), "session_id") {
		t.Fatalf("empty session id should not be stamped: %s", buf.String())
	}
}

func TestDedupeKVsKeepsLastValue(t *testing.T) {
	in := []kv{
		{key: "a", value: slog.IntValue(1)},
		{key: "b", value: slog.IntValue(2)},
		{key: "a", value: slog.IntValue(3)},
	}
	out := dedupeKVsByKey(in)
	if len(out) != 2 || out[0].key != "b" || out[1].key != "a" || out[1].value.Int64() != 3 {
		t.Fatalf("unexpected dedupe result: %+v", out)
	}
}
