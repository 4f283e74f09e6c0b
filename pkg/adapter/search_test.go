package adapter_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/marketmind/marketmind/pkg/adapter"
	"github.com/marketmind/marketmind/pkg/model"
)

func TestDuckDuckGoSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns ranked hits capped at limit", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gt.Equal(t, r.URL.Path, "/news.js")
			gt.Equal(t, r.URL.Query().Get("q"), "BTC outlook")
			gt.Equal(t, r.URL.Query().Get("o"), "json")
			gt.Equal(t, r.URL.Query().Get("kl"), "us-en")

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"results":[
				{"title":"Bitcoin rallies","excerpt":"BTC gains 5%","source":"Reuters"},
				{"title":"ETF inflows","excerpt":"Funds keep buying","source":"Bloomberg"},
				{"title":"Miner update","excerpt":"Hashrate at high","source":"CoinDesk"},
				{"title":"Extra story","excerpt":"Should be dropped","source":"Other"}
			]}`))
		}))
		defer srv.Close()

		ddg := adapter.NewDuckDuckGo(adapter.WithBaseURL(srv.URL), adapter.WithRegion("us-en"))

		hits, err := ddg.Search(ctx, "BTC outlook", 3)
		gt.NoError(t, err)
		gt.A(t, hits).Length(3)
		gt.Equal(t, hits[0], model.SearchHit{Title: "Bitcoin rallies", Snippet: "BTC gains 5%", Source: "Reuters"})
	})

	t.Run("non-JSON payload is a source failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>blocked</html>"))
		}))
		defer srv.Close()

		ddg := adapter.NewDuckDuckGo(adapter.WithBaseURL(srv.URL))

		_, err := ddg.Search(ctx, "BTC", 3)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrSourceUnavailable))
	})

	t.Run("server error is a source failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		ddg := adapter.NewDuckDuckGo(adapter.WithBaseURL(srv.URL))

		_, err := ddg.Search(ctx, "BTC", 3)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrSourceUnavailable))
	})

	t.Run("unreachable endpoint is a source failure", func(t *testing.T) {
		ddg := adapter.NewDuckDuckGo(adapter.WithBaseURL("http://127.0.0.1:1"))

		_, err := ddg.Search(ctx, "BTC", 3)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrSourceUnavailable))
	})
}
