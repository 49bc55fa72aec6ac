package movelog

import (
	"context"
	"encoding/json"
	"geotag-service/internal/domain"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu      sync.Mutex
	records []MoveRecord
}

func (c *collector) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec MoveRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			t.Errorf("decode body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.records = append(c.records, rec)
		c.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}
}

func (c *collector) snapshot() []MoveRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MoveRecord, len(c.records))
	copy(out, c.records)
	return out
}

func TestHTTPMoveLoggerPostsWhileActive(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	logger, err := NewHTTPMoveLogger(srv.URL, 20*time.Millisecond, time.Second, nil)
	require.NoError(t, err)

	pos := domain.Coordinate{Lat: 1.5, Lon: 1.5}
	logger.StartLogging("Kitchen", func() domain.Coordinate { return pos }, "user-1")

	require.Eventually(t, func() bool { return len(c.snapshot()) >= 2 }, 2*time.Second, 10*time.Millisecond)
	logger.StopLogging()

	recs := c.snapshot()
	first := recs[0]
	assert.Equal(t, "Kitchen", first.Room)
	assert.Equal(t, "user-1", first.UserDetails)
	assert.Equal(t, 1.5, first.Latitude)
	assert.Equal(t, 1.5, first.Longitude)
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, first.SessionID, recs[1].SessionID, "one session per StartLogging")

	_, err = time.Parse("2006-01-02T15:04:05.000Z", first.Timestamp)
	assert.NoError(t, err)

	// No posts after stop.
	n := len(c.snapshot())
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, n, len(c.snapshot()))
}

func TestHTTPMoveLoggerRestartUsesNewSession(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	logger, err := NewHTTPMoveLogger(srv.URL, 15*time.Millisecond, time.Second, nil)
	require.NoError(t, err)

	src := func() domain.Coordinate { return domain.Coordinate{} }
	logger.StartLogging("A", src, "u")
	require.Eventually(t, func() bool { return len(c.snapshot()) >= 1 }, 2*time.Second, 5*time.Millisecond)

	logger.StartLogging("B", src, "u")
	require.Eventually(t, func() bool {
		recs := c.snapshot()
		return recs[len(recs)-1].Room == "B"
	}, 2*time.Second, 5*time.Millisecond)
	logger.StopLogging()

	recs := c.snapshot()
	assert.NotEqual(t, recs[0].SessionID, recs[len(recs)-1].SessionID)
}

func TestHTTPMoveLoggerRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	logger, err := NewHTTPMoveLogger(srv.URL, time.Second, time.Second, nil)
	require.NoError(t, err)

	err = logger.post(context.Background(), MoveRecord{Room: "Kitchen"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPMoveLoggerDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	logger, err := NewHTTPMoveLogger(srv.URL, time.Second, time.Second, nil)
	require.NoError(t, err)

	err = logger.post(context.Background(), MoveRecord{Room: "Kitchen"})
	var he *httpStatusError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewHTTPMoveLoggerRejectsEmptyURL(t *testing.T) {
	_, err := NewHTTPMoveLogger("  ", time.Second, time.Second, nil)
	require.Error(t, err)
}

func TestStopWithoutSessionIsNoop(t *testing.T) {
	logger, err := NewHTTPMoveLogger("http://127.0.0.1:1", time.Second, time.Second, nil)
	require.NoError(t, err)
	logger.StopLogging()
}
