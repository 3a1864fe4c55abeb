package downloader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func testScheduler(root string) *Scheduler {
	return New(Options{
		Root:        root,
		Workers:     2,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	})
}

func collect(results <-chan *Result) []*Result {
	var all []*Result
	for res := range results {
		all = append(all, res)
	}
	return all
}

func TestDownloadSuccess(t *testing.T) {
	content := []byte("song data")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	root := t.TempDir()
	s := testScheduler(root)

	jobs := []*Job{{
		RelPath: "Charts/song.ogg",
		EntryID: "e1",
		URL:     srv.URL,
		Size:    int64(len(content)),
		MD5:     md5Hex(content),
	}}

	results := collect(s.Run(context.Background(), jobs))
	require.Len(t, results, 1)
	require.NoError(t, results[0].Error)
	assert.Equal(t, 1, results[0].Attempts)

	data, err := os.ReadFile(filepath.Join(root, "Charts", "song.ogg"))
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// staging file must be gone
	assert.NoFileExists(t, filepath.Join(root, "Charts", StagingPrefix+"song.ogg"))
}

func TestDownloadRetryThenSucceed(t *testing.T) {
	content := []byte("eventually fine")
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(content)
	}))
	defer srv.Close()

	root := t.TempDir()
	s := testScheduler(root)

	results := collect(s.Run(context.Background(), []*Job{{
		RelPath: "a.bin", EntryID: "e1", URL: srv.URL, Size: int64(len(content)),
	}}))
	require.Len(t, results, 1)
	require.NoError(t, results[0].Error)
	assert.Equal(t, 3, results[0].Attempts)
}

func TestDownloadRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	root := t.TempDir()
	s := testScheduler(root)

	results := collect(s.Run(context.Background(), []*Job{{
		RelPath: "a.bin", EntryID: "e1", URL: srv.URL,
	}}))
	require.Len(t, results, 1)
	require.Error(t, results[0].Error)
	assert.Equal(t, 3, results[0].Attempts)

	var te *TransferError
	require.ErrorAs(t, results[0].Error, &te)
	assert.Equal(t, CodeInternalError, te.Code)
	assert.NoFileExists(t, filepath.Join(root, "a.bin"))
}

func TestDownloadTerminalErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := testScheduler(t.TempDir())
	results := collect(s.Run(context.Background(), []*Job{{
		RelPath: "gone.bin", EntryID: "e1", URL: srv.URL,
	}}))

	require.Len(t, results, 1)
	var te *TransferError
	require.ErrorAs(t, results[0].Error, &te)
	assert.Equal(t, CodeNotFound, te.Code)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, IsRetryable(results[0].Error))
}

func TestDownloadVerifyFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("corrupted body"))
	}))
	defer srv.Close()

	root := t.TempDir()
	s := testScheduler(root)

	results := collect(s.Run(context.Background(), []*Job{{
		RelPath: "a.bin", EntryID: "e1", URL: srv.URL,
		Size: 999, MD5: "deadbeef",
	}}))

	require.Len(t, results, 1)
	var te *TransferError
	require.ErrorAs(t, results[0].Error, &te)
	assert.Equal(t, CodeVerifyFailed, te.Code)
	assert.NoFileExists(t, filepath.Join(root, "a.bin"))
}

func TestDownloadRateLimitShrinksPool(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s := testScheduler(t.TempDir())
	require.Equal(t, int64(2), s.throttle.effective())

	results := collect(s.Run(context.Background(), []*Job{
		{RelPath: "a.bin", EntryID: "e1", URL: srv.URL},
		{RelPath: "b.bin", EntryID: "e2", URL: srv.URL},
	}))

	require.Len(t, results, 2)
	for _, res := range results {
		assert.NoError(t, res.Error)
	}
	assert.Equal(t, int64(1), s.throttle.effective())
}

func TestThrottleSlowDownUnderFullLoad(t *testing.T) {
	ctx := context.Background()
	th := newThrottle(2)
	require.NoError(t, th.acquire(ctx))
	require.NoError(t, th.acquire(ctx))

	th.slowDown()
	assert.Equal(t, int64(1), th.effective())

	// floor of one, further signals are ignored
	th.slowDown()
	assert.Equal(t, int64(1), th.effective())

	// first release settles the deferred reservation, second frees a slot
	th.release()
	assert.Equal(t, int64(1), th.effective())
	th.release()
	require.NoError(t, th.acquire(ctx))
}

func TestDownloadCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	s := testScheduler(t.TempDir())

	resultCh := s.Run(ctx, []*Job{{RelPath: "slow.bin", EntryID: "e1", URL: srv.URL}})

	time.Sleep(20 * time.Millisecond)
	cancel()

	results := collect(resultCh)
	for _, res := range results {
		assert.Error(t, res.Error)
	}
}

func TestAuthHeaderForwarded(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s := testScheduler(t.TempDir())
	results := collect(s.Run(context.Background(), []*Job{{
		RelPath: "a.bin", EntryID: "e1", URL: srv.URL, AuthHeader: "Bearer tok-1",
	}}))

	require.Len(t, results, 1)
	require.NoError(t, results[0].Error)
	assert.Equal(t, "Bearer tok-1", got.Load())
}
