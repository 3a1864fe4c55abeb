// Package downloader moves file content from resolved URLs onto disk. Every
// transfer stages into a prefixed temp file next to its destination,
// verifies size and checksum, then renames into place, so a crash never
// leaves a half-written file at a final path.
package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/imroc/req/v3"
	"github.com/noahbaxter/chartsync/internal/utils"
)

// StagingPrefix marks in-flight downloads so scans and purges can tell
// them from real content.
const StagingPrefix = "_download_"

const (
	DefaultWorkers     = 4
	DefaultMaxAttempts = 3
	defaultBackoffBase = 2 * time.Second
	defaultBackoffCap  = 64 * time.Second
)

// Job is one file transfer.
type Job struct {
	RelPath    string // destination, slash-separated, relative to root
	EntryID    string
	URL        string
	AuthHeader string // optional Authorization value
	Size       int64
	MD5        string // empty disables checksum verification
	Archive    bool   // carried through for post-processing
	Callback   func(job *Job, downloadedBytes, totalBytes int64)
}

// Result pairs a job with its outcome.
type Result struct {
	Job      *Job
	Path     string // absolute final path, set on success
	Attempts int
	Error    error
}

// Options configure a scheduler.
type Options struct {
	Root        string // managed root directory
	Workers     int
	MaxAttempts int // per-job attempt cap
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Scheduler runs transfers over a bounded worker pool with per-job retry
// and adaptive throttling on rate-limit responses.
type Scheduler struct {
	opts     Options
	client   *req.Client
	throttle *throttle
}

func New(opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = defaultBackoffCap
	}
	return &Scheduler{
		opts:     opts,
		client:   req.C().SetTimeout(0),
		throttle: newThrottle(opts.Workers),
	}
}

// Run streams results for all jobs. The returned channel closes once every
// job has either succeeded, exhausted its attempts, or been abandoned to
// cancellation.
func (s *Scheduler) Run(ctx context.Context, jobs []*Job) <-chan *Result {
	queue := make(chan *Job, len(jobs))
	results := make(chan *Result, len(jobs))

	var wg sync.WaitGroup
	wg.Add(s.opts.Workers)

	for range s.opts.Workers {
		go func() {
			defer wg.Done()
			for job := range queue {
				select {
				case <-ctx.Done():
					return
				default:
					results <- s.runJob(ctx, job)
				}
			}
		}()
	}

	go func() {
		defer close(queue)
		for _, job := range jobs {
			select {
			case <-ctx.Done():
				return
			case queue <- job:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// runJob attempts one transfer with exponential backoff between attempts.
func (s *Scheduler) runJob(ctx context.Context, job *Job) *Result {
	res := &Result{Job: job}

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		res.Attempts = attempt

		if err := s.throttle.acquire(ctx); err != nil {
			res.Error = err
			return res
		}
		path, err := s.fetchOnce(ctx, job)
		s.throttle.release()

		if err == nil {
			res.Path = path
			res.Error = nil
			return res
		}
		res.Error = err

		if ctx.Err() != nil || !IsRetryable(err) {
			return res
		}
		if IsRateLimited(err) {
			s.throttle.slowDown()
		}
		if attempt == s.opts.MaxAttempts {
			return res
		}

		wait := s.backoff(attempt)
		slog.Debug("download retry", "path", job.RelPath, "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			res.Error = ctx.Err()
			return res
		case <-time.After(wait):
		}
	}

	return res
}

func (s *Scheduler) backoff(attempt int) time.Duration {
	wait := s.opts.BackoffBase << (attempt - 1)
	if wait > s.opts.BackoffCap {
		wait = s.opts.BackoffCap
	}
	// up to 25% jitter keeps retries from synchronizing
	return wait + time.Duration(rand.Int63n(int64(wait)/4+1))
}

// fetchOnce performs a single staged transfer: stream into the temp file,
// verify, rename into place.
func (s *Scheduler) fetchOnce(ctx context.Context, job *Job) (string, error) {
	finalPath := filepath.Join(s.opts.Root, filepath.FromSlash(job.RelPath))
	if err := utils.EnsureParent(finalPath); err != nil {
		return "", fmt.Errorf("download %q: %w", job.RelPath, err)
	}

	stagePath := filepath.Join(filepath.Dir(finalPath), StagingPrefix+filepath.Base(finalPath))
	defer os.Remove(stagePath)

	r := s.client.R().
		DisableAutoReadResponse().
		SetContext(ctx).
		SetOutputFile(stagePath).
		SetDownloadCallbackWithInterval(func(info req.DownloadInfo) {
			if info.Response.Response != nil && job.Callback != nil {
				job.Callback(job, info.DownloadedSize, info.Response.ContentLength)
			}
		}, time.Second)
	if job.AuthHeader != "" {
		r.SetHeader("Authorization", job.AuthHeader)
	}

	resp, err := r.Get(job.URL)
	if err != nil {
		return "", fmt.Errorf("download %q: %w", job.RelPath, err)
	}

	if resp.IsErrorState() {
		return "", fmt.Errorf("download %q: %w", job.RelPath, statusError(resp.GetStatusCode(), stagePath))
	}

	if err := verify(stagePath, job); err != nil {
		return "", fmt.Errorf("download %q: %w", job.RelPath, err)
	}

	if err := os.Rename(stagePath, finalPath); err != nil {
		return "", fmt.Errorf("download %q: %w", job.RelPath, err)
	}
	return finalPath, nil
}

// statusError maps an HTTP status to a coded error. The response body, if
// any, landed in the staging file; surface a snippet of it.
func statusError(status int, stagePath string) *TransferError {
	snippet := bodySnippet(stagePath)
	switch status {
	case 403:
		return NewTransferError(CodeForbidden, snippet)
	case 404:
		return NewTransferError(CodeNotFound, snippet)
	case 429:
		return NewTransferError(CodeRateLimited, snippet)
	case 500, 502, 503, 504:
		return NewTransferError(CodeInternalError, fmt.Sprintf("status %d", status))
	default:
		return NewTransferError(CodeUnknownError, fmt.Sprintf("status %d: %s", status, snippet))
	}
}

func bodySnippet(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return ""
	}
	body := strings.TrimSpace(string(data))
	if len(body) > 200 {
		body = body[:200]
	}
	return body
}

// verify checks the staged file against the expected size and checksum.
func verify(stagePath string, job *Job) error {
	info, err := os.Stat(stagePath)
	if err != nil {
		return err
	}
	if job.Size > 0 && info.Size() != job.Size {
		return NewTransferError(CodeVerifyFailed,
			fmt.Sprintf("size %d, want %d", info.Size(), job.Size))
	}
	if job.MD5 != "" {
		sum, err := utils.FileHash(stagePath)
		if err != nil {
			return err
		}
		if sum != job.MD5 {
			return NewTransferError(CodeVerifyFailed,
				fmt.Sprintf("md5 %s, want %s", sum, job.MD5))
		}
	}
	return nil
}
