package movelog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"geotag-service/internal/platform/metrics"
	"geotag-service/internal/ports"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// MoveRecord is the body POSTed on every tick of a logging session.
type MoveRecord struct {
	SessionID   string  `json:"session_id"`
	Timestamp   string  `json:"timestamp"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Room        string  `json:"room"`
	UserDetails string  `json:"user_details"`
}

// HTTPMoveLogger implements ports.MoveLogger by POSTing the user's position
// to a collector endpoint at a fixed interval while a session is active.
//
// Delivery is best effort: transient failures are retried with exponential
// backoff, and a circuit breaker stops hammering an endpoint that keeps
// failing. Errors are logged and never reach the tracker.
type HTTPMoveLogger struct {
	session  *http.Client
	url      string
	interval time.Duration
	breaker  *gobreaker.CircuitBreaker
	metrics  *metrics.Collector

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHTTPMoveLogger(url string, interval, timeout time.Duration, m *metrics.Collector) (*HTTPMoveLogger, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("move logger url is empty")
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "move-log",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("move logger: breaker=%s state %s -> %s", name, from, to)
		},
	})

	return &HTTPMoveLogger{
		session:  &http.Client{Timeout: timeout},
		url:      url,
		interval: interval,
		breaker:  breaker,
		metrics:  m,
	}, nil
}

// StartLogging replaces any running session with one tagged roomName.
func (l *HTTPMoveLogger) StartLogging(roomName string, source ports.PositionSource, userIdentity string) {
	l.StopLogging()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sessionID := uuid.NewString()

	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	log.Printf("move logger: session start session=%s room=%q user=%q", sessionID, roomName, userIdentity)
	go l.run(ctx, done, sessionID, roomName, source, userIdentity)
}

// StopLogging ends the current session and waits for its loop to exit.
func (l *HTTPMoveLogger) StopLogging() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *HTTPMoveLogger) run(
	ctx context.Context,
	done chan struct{},
	sessionID, roomName string,
	source ports.PositionSource,
	userIdentity string,
) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("move logger: session stop session=%s room=%q", sessionID, roomName)
			return
		case now := <-ticker.C:
			pos := source()
			rec := MoveRecord{
				SessionID:   sessionID,
				Timestamp:   now.UTC().Format("2006-01-02T15:04:05.000Z"),
				Latitude:    pos.Lat,
				Longitude:   pos.Lon,
				Room:        roomName,
				UserDetails: userIdentity,
			}
			if err := l.post(ctx, rec); err != nil && ctx.Err() == nil {
				log.Printf("move logger: post failed session=%s room=%q err=%v", sessionID, roomName, err)
			}
		}
	}
}

func (l *HTTPMoveLogger) post(ctx context.Context, rec MoveRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode move record: %w", err)
	}

	_, err = l.breaker.Execute(func() (any, error) {
		resp, err := l.doWithRetry(ctx, func() (*http.Request, error) {
			return l.newRequest(ctx, body)
		})
		if err != nil {
			return nil, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, nil
	})

	switch {
	case err == nil:
		l.metrics.MoveLogPost("ok")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		l.metrics.MoveLogPost("rejected")
	default:
		l.metrics.MoveLogPost("error")
	}
	return err
}

func (l *HTTPMoveLogger) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}

func (l *HTTPMoveLogger) do(req *http.Request) (*http.Response, error) {
	resp, err := l.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// doWithRetry retries network errors and 429/5xx responses with exponential
// backoff. Other failures are returned immediately.
func (l *HTTPMoveLogger) doWithRetry(
	ctx context.Context,
	makeReq func() (*http.Request, error),
) (*http.Response, error) {
	const maxAttempts = 4

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = l.interval

	var resp *http.Response
	op := func() error {
		req, err := makeReq()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("make request: %w", err))
		}

		r, err := l.do(req)
		if err == nil {
			resp = r
			return nil
		}

		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case 429, 500, 502, 503, 504:
				return err
			}
			return backoff.Permanent(err)
		}

		var netErr net.Error
		if errors.As(err, &netErr) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return resp, nil
}
