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

package operation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/walteh/fetchrc/pkg/download"
	"github.com/walteh/fetchrc/pkg/fsys"
	"github.com/walteh/fetchrc/pkg/operation"
	"github.com/walteh/fetchrc/pkg/placement"
	"github.com/walteh/fetchrc/pkg/resource"
	"github.com/walteh/fetchrc/pkg/status"
	"gitlab.com/tozd/go/errors"
)

// 🔧 MockFileSystem is a mock implementation of fsys.FileSystem
type MockFileSystem struct {
	mock.Mock
}

func (m *MockFileSystem) Exists(ctx context.Context, path string) (bool, error) {
	result := m.Called(ctx, path)
	return result.Bool(0), result.Error(1)
}

func (m *MockFileSystem) CreateDir(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockFileSystem) Copy(ctx context.Context, src, dst string) error {
	return m.Called(ctx, src, dst).Error(0)
}

func (m *MockFileSystem) Remove(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockFileSystem) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	result := m.Called(ctx, path)
	content, _ := result.Get(0).([]byte)
	return content, result.Error(1)
}

// 🧪 createTestEnv creates a sandbox with a bundle dir and deps over the OS
func createTestEnv(t *testing.T) (context.Context, string, operation.Deps) {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	ctx := logger.WithContext(context.Background())

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tmp"), 0o755))

	deps := operation.Deps{
		Placer:       placement.New(fsys.NewOS()),
		Client:       http.DefaultClient,
		TempDir:      filepath.Join(dir, "tmp"),
		RetryBackoff: time.Millisecond,
	}
	return ctx, dir, deps
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp downloads should be cleaned up")
}

func TestNewSelectsOperation(t *testing.T) {
	_, dir, deps := createTestEnv(t)

	_, err := operation.New(resource.Item{Resource: resource.NewBundle(filepath.Join(dir, "a"), "b")}, deps)
	require.NoError(t, err)

	_, err = operation.New(resource.Item{Resource: resource.NewRemote(filepath.Join(dir, "a"), "https://example.com/a")}, deps)
	require.NoError(t, err)

	_, err = operation.New(resource.Item{Resource: resource.Resource{Destination: "a"}}, deps)
	assert.Error(t, err, "a resource without a source is invalid")

	_, err = operation.New(resource.Item{Resource: resource.NewBundle("a", "b")}, operation.Deps{})
	assert.Error(t, err, "a placer is required")
}

func TestCopyOperation(t *testing.T) {
	ctx, dir, deps := createTestEnv(t)
	bundle := filepath.Join(dir, "bundle", "a.json")
	dst := filepath.Join(dir, "out", "a.json")
	writeFile(t, bundle, `{"v":1}`)

	op := operation.NewCopy(resource.Item{Resource: resource.NewBundle(dst, bundle), Policy: resource.OnlyWhenNew}, deps)
	res, err := op.Execute(ctx)
	require.NoError(t, err)

	assert.Equal(t, placement.OutcomeCreated, res.Outcome)
	assert.Equal(t, bundle, res.Source)
	assert.Equal(t, int64(7), res.Size)
	assert.Equal(t, status.Checksum([]byte(`{"v":1}`)), res.Checksum)
	assert.Equal(t, `{"v":1}`, readFile(t, dst))

	writeFile(t, bundle, `{"v":2}`)
	res, err = op.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, placement.OutcomeSkipped, res.Outcome, "only_when_new should not overwrite")
	assert.Empty(t, res.Checksum, "nothing was placed")
	assert.Equal(t, `{"v":1}`, readFile(t, dst))
}

func TestCopyOperationCancelledBeforeStart(t *testing.T) {
	fs := &MockFileSystem{}
	defer fs.AssertExpectations(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op := operation.NewCopy(resource.Item{Resource: resource.NewBundle("dst", "src"), Policy: resource.AlwaysCopy}, operation.Deps{Placer: placement.New(fs)})
	_, err := op.Execute(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	fs.AssertNotCalled(t, "Exists", mock.Anything, mock.Anything)
}

func TestCopyOperationFilesystemFailure(t *testing.T) {
	ctx := context.Background()
	fs := &MockFileSystem{}
	defer fs.AssertExpectations(t)

	boom := &fsys.FileSystemError{Op: "mkdir", Path: "out", Err: errors.New("read-only")}
	fs.On("Exists", mock.Anything, "out/a.json").Return(false, nil).Once()
	fs.On("Exists", mock.Anything, "out").Return(false, nil).Once()
	fs.On("CreateDir", mock.Anything, "out").Return(boom).Once()

	op := operation.NewCopy(resource.Item{Resource: resource.NewBundle("out/a.json", "bundle/a.json"), Policy: resource.AlwaysCopy}, operation.Deps{Placer: placement.New(fs)})
	_, err := op.Execute(ctx)
	require.Error(t, err)

	var fsErr *fsys.FileSystemError
	assert.True(t, errors.As(err, &fsErr))
	fs.AssertNotCalled(t, "Copy", mock.Anything, mock.Anything, mock.Anything)
}

func TestDownloadOperation(t *testing.T) {
	ctx, dir, deps := createTestEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"v":3}`))
	}))
	defer srv.Close()

	var mu sync.Mutex
	var ratios []float32
	var urls []string
	deps.Progress = func(url string, ratio float32) {
		mu.Lock()
		defer mu.Unlock()
		urls = append(urls, url)
		ratios = append(ratios, ratio)
	}

	dst := filepath.Join(dir, "out", "a.json")
	writeFile(t, dst, `{"v":2}`)
	url := srv.URL + "/a.json"

	op := operation.NewDownload(resource.Item{Resource: resource.NewRemote(dst, url), Policy: resource.AlwaysCopy}, deps)
	res, err := op.Execute(ctx)
	require.NoError(t, err)

	assert.Equal(t, placement.OutcomeReplaced, res.Outcome)
	assert.Equal(t, url, res.Source)
	assert.False(t, res.Fallback)
	assert.Equal(t, `{"v":3}`, readFile(t, dst))
	assertNoTempFiles(t, deps.TempDir)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, ratios)
	assert.Equal(t, float32(1), ratios[len(ratios)-1], "last tick should be 1.0")
	for _, u := range urls {
		assert.Equal(t, url, u, "progress should be keyed by the resource url")
	}
}

func TestDownloadOperationSkipsExistingWithoutNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	fs := &MockFileSystem{}
	defer fs.AssertExpectations(t)
	fs.On("Exists", mock.Anything, "out/a.json").Return(true, nil).Once()

	op := operation.NewDownload(resource.Item{Resource: resource.NewRemote("out/a.json", srv.URL), Policy: resource.OnlyWhenNew}, operation.Deps{Placer: placement.New(fs)})
	res, err := op.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, placement.OutcomeSkipped, res.Outcome)
	assert.Zero(t, hits.Load(), "no request should be made")
}

func TestDownloadOperationManualCompare(t *testing.T) {
	ctx, dir, deps := createTestEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":1}`))
	}))
	defer srv.Close()

	cmp, err := resource.FieldComparator(resource.FormatJSON, "version")
	require.NoError(t, err)

	dst := filepath.Join(dir, "a.json")
	writeFile(t, dst, `{"version":2}`)

	op := operation.NewDownload(resource.Item{Resource: resource.NewRemote(dst, srv.URL), Policy: resource.ManualCompare(cmp)}, deps)
	res, err := op.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, placement.OutcomeKept, res.Outcome, "older remote should not replace a newer local file")
	assert.Equal(t, `{"version":2}`, readFile(t, dst))
	assertNoTempFiles(t, deps.TempDir)
}

func TestDownloadOperationTransportError(t *testing.T) {
	ctx, dir, deps := createTestEnv(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dst := filepath.Join(dir, "a.json")
	op := operation.NewDownload(resource.Item{Resource: resource.NewRemote(dst, srv.URL), Policy: resource.AlwaysCopy}, deps)
	_, err := op.Execute(ctx)
	require.Error(t, err)
	assert.True(t, download.IsTransport(err))
	assert.NoFileExists(t, dst, "a failed download should not create the destination")
	assertNoTempFiles(t, deps.TempDir)
}

func TestDownloadOperationFallsBackToBundle(t *testing.T) {
	ctx, dir, deps := createTestEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	bundle := filepath.Join(dir, "bundle", "a.json")
	writeFile(t, bundle, "bundled")
	dst := filepath.Join(dir, "out", "a.json")

	op := operation.NewDownload(resource.Item{Resource: resource.NewBoth(dst, bundle, srv.URL), Policy: resource.AlwaysCopy}, deps)
	res, err := op.Execute(ctx)
	require.NoError(t, err, "bundle should cover for the failed transfer")
	assert.True(t, res.Fallback)
	assert.Equal(t, bundle, res.Source)
	assert.Equal(t, placement.OutcomeCreated, res.Outcome)
	assert.Equal(t, "bundled", readFile(t, dst))
}

func TestDownloadOperationCancelDoesNotFallBack(t *testing.T) {
	_, dir, deps := createTestEnv(t)
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	bundle := filepath.Join(dir, "bundle", "a.json")
	writeFile(t, bundle, "bundled")
	dst := filepath.Join(dir, "out", "a.json")

	ctx, cancel := context.WithCancel(zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background()))
	go func() {
		<-started
		cancel()
	}()

	op := operation.NewDownload(resource.Item{Resource: resource.NewBoth(dst, bundle, srv.URL), Policy: resource.AlwaysCopy}, deps)
	_, err := op.Execute(ctx)
	require.Error(t, err)
	assert.True(t, download.IsCancelled(err))
	assert.NoFileExists(t, dst, "cancellation must not fall back to the bundle")
	assertNoTempFiles(t, deps.TempDir)
}

func TestRunnerTracksResults(t *testing.T) {
	ctx, dir, deps := createTestEnv(t)
	tracker := status.NewTracker(nil)
	runner := operation.NewRunner(tracker)

	bundle := filepath.Join(dir, "a.json")
	writeFile(t, bundle, "a")
	okDst := filepath.Join(dir, "out", "ok.json")
	badDst := filepath.Join(dir, "out", "bad.json")

	_, err := runner.Run(ctx, operation.NewCopy(resource.Item{Resource: resource.NewBundle(okDst, bundle)}, deps))
	require.NoError(t, err)
	_, err = runner.Run(ctx, operation.NewCopy(resource.Item{Resource: resource.NewBundle(badDst, filepath.Join(dir, "missing"))}, deps))
	require.Error(t, err)

	ok, err := tracker.Get(okDst)
	require.NoError(t, err)
	assert.Equal(t, status.StatusNew, ok.Status)
	assert.NotEmpty(t, ok.Checksum)

	bad, err := tracker.Get(badDst)
	require.NoError(t, err)
	assert.Equal(t, status.StatusFailed, bad.Status)
	assert.Error(t, bad.Error)

	processed, _ := tracker.Progress()
	assert.Equal(t, 2, processed)
}

func TestClean(t *testing.T) {
	ctx, dir, _ := createTestEnv(t)
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	writeFile(t, a, "a")

	tracker := status.NewTracker(nil)
	require.NoError(t, operation.Clean(ctx, fsys.NewOS(), tracker, []string{a, b}))
	assert.NoFileExists(t, a)

	for _, e := range tracker.List() {
		assert.Equal(t, status.StatusDeleted, e.Status)
	}

	fs := &MockFileSystem{}
	fs.On("Remove", mock.Anything, "locked").Return(errors.New("permission denied")).Once()
	err := operation.Clean(ctx, fs, status.NewTracker(nil), []string{"locked", "never"})
	require.Error(t, err)
	fs.AssertNotCalled(t, "Remove", mock.Anything, "never")
}
