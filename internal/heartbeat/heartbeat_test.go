package heartbeat_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmp-go/core/internal/heartbeat"
)

type fakeCounter struct{ n int }

func (f fakeCounter) Count() int { return f.n }

func TestBeatSendsSanitizedQueryParams(t *testing.T) {
	var gotQuery url.Values
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		gotQuery = r.URL.Query()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	worker := heartbeat.New(heartbeat.Info{
		URL:  srv.URL,
		Name: "Server\x01Name",
		Port: 9000,
		Map:  "oldcamp",
	}, 32, fakeCounter{n: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	_ = worker.Run(ctx)

	require.GreaterOrEqual(t, int(atomic.LoadInt32(&hits)), 1)
	require.Equal(t, "9000", gotQuery.Get("port"))
	require.Equal(t, "3", gotQuery.Get("crt"))
	require.Equal(t, "32", gotQuery.Get("mx"))
	require.Equal(t, "oldcamp", gotQuery.Get("map"))
}
