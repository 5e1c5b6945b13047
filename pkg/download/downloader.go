// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package download transfers one remote file into a temporary location with
// progress reporting, cancellation, retries and resume.
package download

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 🚦 State is the lifecycle of a single transfer
type State int

const (
	StateIdle State = iota
	StateDownloading
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDownloading:
		return "downloading"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ProgressFunc receives the fraction of bytes written, in [0,1]
type ProgressFunc func(req *http.Request, ratio float32)

const (
	defaultRetryBackoff    = 200 * time.Millisecond
	defaultRetryMaxBackoff = 5 * time.Second
	copyBufferSize         = 32 * 1024
)

// Options configures a Downloader
type Options struct {
	Client    *http.Client
	TempDir   string
	Progress  ProgressFunc
	Challenge ChallengeHandler
	// RetryAttempts is the number of retries after the first attempt
	RetryAttempts   int
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
}

// 📡 Downloader fetches one URL into a temp file. It is single use.
type Downloader struct {
	url  string
	opts Options

	mu        sync.Mutex
	state     State
	cancelled bool
	cancel    context.CancelFunc
}

// New creates an idle downloader for url
func New(url string, opts Options) *Downloader {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.RetryMaxBackoff <= 0 {
		opts.RetryMaxBackoff = defaultRetryMaxBackoff
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	return &Downloader{url: url, opts: opts, state: StateIdle}
}

// URL returns the address being fetched
func (d *Downloader) URL() string { return d.url }

// State returns the current lifecycle state
func (d *Downloader) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Cancel stops the transfer. Calling it after a terminal state is a no-op.
func (d *Downloader) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case StateIdle:
		d.cancelled = true
		d.state = StateCancelled
	case StateDownloading:
		d.cancelled = true
		if d.cancel != nil {
			d.cancel()
		}
	}
}

// attempt is the mutable state carried across retries
type attempt struct {
	file    *os.File
	written int64
	total   int64
	cred    *Credential
	// asked is set once the basic challenge handler has been consulted
	asked  bool
	reauth bool
}

// ⬇️ Start runs the transfer and blocks until it finishes. On success it
// returns the path of a temp file the caller owns.
func (d *Downloader) Start(ctx context.Context) (string, error) {
	d.mu.Lock()
	if d.state != StateIdle {
		cancelled := d.cancelled
		d.mu.Unlock()
		if cancelled {
			return "", errors.WithStack(ErrDownloadCancelled)
		}
		return "", errors.Errorf("downloader for %s already started", d.url)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.cancel = cancel
	d.state = StateDownloading
	d.mu.Unlock()

	logger := zerolog.Ctx(ctx).With().Str("url", d.url).Logger()

	file, err := os.CreateTemp(d.opts.TempDir, "fetchrc-*.download")
	if err != nil {
		d.finish(StateFailed)
		return "", errors.Errorf("creating temp file: %w", err)
	}
	tmp := file.Name()

	at := &attempt{file: file, total: -1}
	err = d.run(ctx, at)
	closeErr := file.Close()
	if err == nil && closeErr != nil {
		err = errors.Errorf("closing temp file: %w", closeErr)
	}

	d.mu.Lock()
	cancelled := d.cancelled
	d.mu.Unlock()

	if cancelled || IsCancelled(err) {
		_ = os.Remove(tmp)
		d.finish(StateCancelled)
		logger.Debug().Msg("download cancelled")
		return "", errors.WithStack(ErrDownloadCancelled)
	}
	if err != nil {
		_ = os.Remove(tmp)
		d.finish(StateFailed)
		logger.Debug().Err(err).Msg("download failed")
		return "", err
	}

	d.finish(StateCompleted)
	logger.Debug().Int64("bytes", at.written).Msg("download completed")
	return tmp, nil
}

func (d *Downloader) finish(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
	d.cancel = nil
}

func (d *Downloader) run(ctx context.Context, at *attempt) error {
	try := 0
	for {
		req, retry, err := d.fetch(ctx, at)
		if err == nil {
			d.tick(ctx, req, 1)
			return nil
		}
		if IsCancelled(err) || !retry {
			return err
		}
		if at.reauth {
			// credentials from a basic challenge do not consume a retry
			at.reauth = false
			continue
		}
		try++
		if try > d.opts.RetryAttempts {
			return err
		}
		if err := d.sleep(ctx, try); err != nil {
			return err
		}
		zerolog.Ctx(ctx).Debug().Int("attempt", try+1).Int64("offset", at.written).Err(err).Msg("retrying download")
	}
}

func (d *Downloader) sleep(ctx context.Context, try int) error {
	delay := d.opts.RetryBackoff << (try - 1)
	if delay <= 0 || delay > d.opts.RetryMaxBackoff {
		delay = d.opts.RetryMaxBackoff
	}
	delay += time.Duration(rand.Int64N(int64(delay)/2 + 1))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return d.contextErr(ctx)
	case <-timer.C:
		return nil
	}
}

// contextErr maps a done context to cancellation or a transport timeout
func (d *Downloader) contextErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TransportError{URL: d.url, Err: errors.WithStack(ctx.Err())}
	}
	return errors.WithStack(ErrDownloadCancelled)
}

// fetch performs one request. retry reports whether a failure is transient.
func (d *Downloader) fetch(ctx context.Context, at *attempt) (*http.Request, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, false, &TransportError{URL: d.url, Err: errors.WithStack(err)}
	}
	if at.written > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", at.written))
	}
	if at.cred != nil {
		req.SetBasicAuth(at.cred.Username, at.cred.Password)
	}

	resp, err := d.opts.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return req, false, d.contextErr(ctx)
		}
		return req, !errors.Is(err, ErrChallengeRejected), &TransportError{URL: d.url, Err: errors.WithStack(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		retry, err := d.answerBasic(req, resp, at)
		return req, retry, err
	case resp.StatusCode == http.StatusPartialContent && at.written > 0:
		start, total, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if !ok || start != at.written {
			if err := at.reset(); err != nil {
				return req, false, err
			}
			return req, true, &TransportError{URL: d.url, StatusCode: resp.StatusCode, Err: errors.New("unusable content range, restarting")}
		}
		at.total = total
		d.tick(ctx, req, at.ratio())
	case resp.StatusCode == http.StatusOK:
		if at.written > 0 {
			if err := at.reset(); err != nil {
				return req, false, err
			}
		}
		at.total = resp.ContentLength
	case resp.StatusCode >= 500:
		return req, true, &TransportError{URL: d.url, StatusCode: resp.StatusCode, Err: errors.New("server error")}
	default:
		return req, false, &TransportError{URL: d.url, StatusCode: resp.StatusCode, Err: errors.New("unexpected status")}
	}

	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := at.file.Write(buf[:n]); werr != nil {
				return req, false, errors.Errorf("writing temp file: %w", werr)
			}
			at.written += int64(n)
			d.tick(ctx, req, at.ratio())
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return req, false, d.contextErr(ctx)
			}
			return req, true, &TransportError{URL: d.url, StatusCode: resp.StatusCode, Err: errors.WithStack(rerr)}
		}
	}

	if at.total > 0 && at.written < at.total {
		return req, true, &TransportError{URL: d.url, StatusCode: resp.StatusCode, Err: errors.WithStack(io.ErrUnexpectedEOF)}
	}
	return req, false, nil
}

// answerBasic consults the challenge handler for a 401. A credential makes
// the failure retryable so the next attempt carries it.
func (d *Downloader) answerBasic(req *http.Request, resp *http.Response, at *attempt) (bool, error) {
	unauthorized := &TransportError{URL: d.url, StatusCode: resp.StatusCode, Err: errors.New("unauthorized")}
	if d.opts.Challenge == nil || at.asked {
		return false, unauthorized
	}
	realm, ok := basicRealm(resp.Header.Get("WWW-Authenticate"))
	if !ok {
		return false, unauthorized
	}
	at.asked = true

	disposition, cred := d.opts.Challenge(Challenge{Kind: ChallengeHTTPBasic, Host: req.URL.Hostname(), Realm: realm})
	switch disposition {
	case UseCredential:
		if cred == nil {
			return false, unauthorized
		}
		at.cred = cred
		at.reauth = true
		return true, unauthorized
	case CancelChallenge, RejectProtectionSpace:
		return false, &TransportError{URL: d.url, StatusCode: resp.StatusCode, Err: errors.WithStack(ErrChallengeRejected)}
	default:
		return false, unauthorized
	}
}

func (d *Downloader) tick(ctx context.Context, req *http.Request, ratio float32) {
	if d.opts.Progress == nil || ctx.Err() != nil {
		return
	}
	d.opts.Progress(req, ratio)
}

func (a *attempt) ratio() float32 {
	if a.total <= 0 {
		return 0
	}
	r := float32(a.written) / float32(a.total)
	if r > 1 {
		return 1
	}
	return r
}

func (a *attempt) reset() error {
	if err := a.file.Truncate(0); err != nil {
		return errors.Errorf("truncating temp file: %w", err)
	}
	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return errors.Errorf("rewinding temp file: %w", err)
	}
	a.written = 0
	a.total = -1
	return nil
}

// parseContentRange reads "bytes start-end/total". An unknown total is -1.
func parseContentRange(header string) (start, total int64, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !found {
		return 0, 0, false
	}
	span, size, found := strings.Cut(rest, "/")
	if !found {
		return 0, 0, false
	}
	first, _, found := strings.Cut(span, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if size == "*" {
		return start, -1, true
	}
	total, err = strconv.ParseInt(size, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, total, true
}
