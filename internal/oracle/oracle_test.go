package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testMint = "7Y5UnkniiBZYmBt2dMtX1b3KLG7TM6V4SeGBgdoxQoG1"

func TestGetVolumePrimaryPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/coins/"+testMint, r.URL.Path)
		_, _ = w.Write([]byte(`{"mint":"` + testMint + `","total_volume":240.5,"last_trade_timestamp":1700000000000}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 50, zaptest.NewLogger(t))
	v := c.GetVolume(context.Background(), testMint)

	assert.True(t, v.TotalVolume.Equal(decimal.RequireFromString("240.5")))
	require.NotNil(t, v.LastTradeAt)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), *v.LastTradeAt)
}

func TestGetVolumeFallbackSumsTrades(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coins/" + testMint:
			_, _ = w.Write([]byte(`{"mint":"` + testMint + `"}`))
		case "/trades/all/" + testMint:
			gotQuery = r.URL.RawQuery
			_, _ = w.Write([]byte(`[
				{"signature":"a","sol_amount":1500000000,"timestamp":1700000100},
				{"signature":"b","sol_amount":500000000,"timestamp":1700000200}
			]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 2, zaptest.NewLogger(t))
	v := c.GetVolume(context.Background(), testMint)

	assert.True(t, v.TotalVolume.Equal(decimal.NewFromInt(2)), v.TotalVolume.String())
	require.NotNil(t, v.LastTradeAt)
	assert.Equal(t, int64(1700000200), v.LastTradeAt.Unix())
	assert.Equal(t, "limit=2&offset=0", gotQuery)
}

func TestGetVolumeFailsOpenToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	failures := prometheus.NewCounter(prometheus.CounterOpts{Name: "oracle_failures_test"})
	c := NewClient(srv.URL, time.Second, 10, zaptest.NewLogger(t), WithFailureCounter(failures))
	v := c.GetVolume(context.Background(), testMint)

	assert.True(t, v.TotalVolume.IsZero())
	assert.Nil(t, v.LastTradeAt)
	assert.Equal(t, float64(1), testutil.ToFloat64(failures))
}

func TestGetVolumeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, 200*time.Millisecond, 10, zaptest.NewLogger(t))
	v := c.GetVolume(context.Background(), testMint)
	assert.True(t, v.TotalVolume.IsZero())
}

func TestGetVolumeClampsNegative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"total_volume":-3}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 10, zaptest.NewLogger(t))
	assert.True(t, c.GetVolume(context.Background(), testMint).TotalVolume.IsZero())
}
