package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/config"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

func testRoute() domain.Route {
	return domain.Route{
		Pair:           pricingDomain.MustParsePair("WETH-USDC"),
		PairSymbol:     "WETH-USDC",
		SourceExchange: "uniswap",
		TargetExchange: "sushiswap",
		SourceNetwork:  "ethereum",
		TargetNetwork:  "ethereum",
	}
}

func testConfig(url string) config.ScorerConfig {
	return config.ScorerConfig{
		URL:                 url,
		Timeout:             time.Second,
		CacheTTL:            time.Minute,
		DefaultConfidence:   0.5,
		DefaultSuccessRate:  0.6,
		DefaultFrontRunRisk: 0.2,
		DefaultModelScore:   0.5,
	}
}

func newTestScorer(t *testing.T, handler http.HandlerFunc) (*HTTPScorer, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	s, err := NewHTTPScorer(testConfig(srv.URL), logger.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPScorer() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s, &calls
}

func TestHTTPScorer_Score(t *testing.T) {
	s, calls := newTestScorer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != scoreEndpoint {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var req ScoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Pair != "WETH-USDC" || req.SourceExchange != "uniswap" {
			t.Errorf("request body = %+v", req)
		}
		json.NewEncoder(w).Encode(app.Score{Confidence: 0.9, SuccessRate: 0.8, FrontRunRisk: 0.1, ModelScore: 1.4})
	})

	ctx := context.Background()
	got, err := s.Score(ctx, testRoute())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	want := app.Score{Confidence: 0.9, SuccessRate: 0.8, FrontRunRisk: 0.1, ModelScore: 1}
	if got != want {
		t.Errorf("Score() = %+v, want %+v", got, want)
	}

	if _, err := s.Score(ctx, testRoute()); err != nil {
		t.Fatalf("second Score() error = %v", err)
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Errorf("upstream calls = %d, want 1 (cached)", n)
	}
}

func TestHTTPScorer_FallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server_error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "malformed_body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("{not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, calls := newTestScorer(t, tt.handler)

			got, err := s.Score(context.Background(), testRoute())
			if err != nil {
				t.Fatalf("Score() error = %v, want fallback", err)
			}
			if want := app.Score(Defaults(testConfig(""))); got != want {
				t.Errorf("Score() = %+v, want defaults %+v", got, want)
			}

			s.Score(context.Background(), testRoute())
			if n := atomic.LoadInt32(calls); n != 2 {
				t.Errorf("upstream calls = %d, want 2 (failures are not cached)", n)
			}
		})
	}
}

func TestStatic_Score(t *testing.T) {
	s := Static{Confidence: 0.7}
	got, err := s.Score(context.Background(), testRoute())
	if err != nil || got.Confidence != 0.7 {
		t.Errorf("Score() = %+v, %v", got, err)
	}
}
