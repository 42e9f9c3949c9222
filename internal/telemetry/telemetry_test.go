package telemetry

import (
	"context"
	"testing"

	"github.com/opensource-finance/pensionrules/internal/domain"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.TracingConfig
	}{
		{name: "Disabled", cfg: domain.TracingConfig{Enabled: false, Endpoint: "http://localhost:4318"}},
		{name: "NoEndpoint", cfg: domain.TracingConfig{Enabled: true}},
		// Non-routable address so nothing is exported.
		{name: "WithEndpoint", cfg: domain.TracingConfig{Enabled: true, Endpoint: "http://192.0.2.1:4318", ServiceName: "pensionrules-test"}},
		{name: "DefaultServiceName", cfg: domain.TracingConfig{Enabled: true, Endpoint: "http://192.0.2.1:4318"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), tt.cfg, "test")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown error: %v", err)
			}
		})
	}
}
