package services_test

import (
	"context"
	"testing"

	"gameshelf/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithUnitID(ctx, 42)
	ctx = services.WithScanID(ctx, "scan-1")
	ctx = services.WithScanKind(ctx, "quick")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.UnitIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected unit id: %v %v", id, ok)
	}
	if id, ok := services.ScanIDFromContext(ctx); !ok || id != "scan-1" {
		t.Fatalf("unexpected scan id: %v %v", id, ok)
	}
	if kind, ok := services.ScanKindFromContext(ctx); !ok || kind != "quick" {
		t.Fatalf("unexpected scan kind: %v %v", kind, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithScanID(ctx, "")
	ctx = services.WithScanKind(ctx, "")
	if _, ok := services.ScanIDFromContext(ctx); ok {
		t.Fatal("expected no scan id value")
	}
	if _, ok := services.ScanKindFromContext(ctx); ok {
		t.Fatal("expected no scan kind value")
	}
	if _, ok := services.UnitIDFromContext(ctx); ok {
		t.Fatal("expected no unit id value")
	}
}
