package observability

import (
	"context"
	"testing"

	"github.com/annel0/landblock/internal/config"
	"github.com/annel0/landblock/internal/logging"
)

func TestInitTelemetry_Disabled(t *testing.T) {
	shutdown, err := InitTelemetry(context.Background(), config.TelemetryConfig{}, logging.NewNop())
	if err != nil {
		t.Fatalf("InitTelemetry: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
