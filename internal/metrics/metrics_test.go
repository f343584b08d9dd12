package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func TestProvider_ExposesCounters(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer p.Shutdown(ctx)

	counter, err := otel.Meter("test").Int64Counter("arb_test_events", metric.WithDescription("test"))
	if err != nil {
		t.Fatalf("Int64Counter() error = %v", err)
	}
	counter.Add(ctx, 3)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "arb_test_events_total") {
		t.Errorf("scrape output missing counter:\n%s", body)
	}
}
