package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-cli/internal/config"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	args := m.Called(ctx, url)
	if rc := args.Get(0); rc != nil {
		return rc.(io.ReadCloser), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestLoader_LocalFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "inv-42.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.7"), 0o600))

	l := NewLoaderWith(nil, nil, 1<<20)
	name, data, err := l.Load(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "inv-42.pdf", name)
	assert.Equal(t, "%PDF-1.7", string(data))
}

func TestLoader_FileScheme(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	name, _, err := NewLoaderWith(nil, nil, 0).Load(context.Background(), "file://"+p)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", name)
}

func TestLoader_MissingFile(t *testing.T) {
	_, _, err := NewLoaderWith(nil, nil, 0).Load(context.Background(), "/does/not/exist.pdf")
	require.Error(t, err)
}

func TestLoader_TooLarge(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "big.pdf")
	require.NoError(t, os.WriteFile(p, []byte(strings.Repeat("a", 64)), 0o600))

	_, _, err := NewLoaderWith(nil, nil, 32).Load(context.Background(), p)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestLoader_DispatchesByScheme(t *testing.T) {
	httpF := &mockFetcher{}
	ftpF := &mockFetcher{}
	httpF.On("Download", mock.Anything, "https://cdn.example.com/bills/inv.pdf").
		Return(io.NopCloser(strings.NewReader("http-bytes")), nil)
	ftpF.On("Download", mock.Anything, "ftp://ftp.example.com/inv.pdf").
		Return(io.NopCloser(strings.NewReader("ftp-bytes")), nil)

	l := NewLoaderWith(httpF, ftpF, 1<<20)

	name, data, err := l.Load(context.Background(), "https://cdn.example.com/bills/inv.pdf")
	require.NoError(t, err)
	assert.Equal(t, "inv.pdf", name)
	assert.Equal(t, "http-bytes", string(data))

	_, data, err = l.Load(context.Background(), "ftp://ftp.example.com/inv.pdf")
	require.NoError(t, err)
	assert.Equal(t, "ftp-bytes", string(data))

	httpF.AssertExpectations(t)
	ftpF.AssertExpectations(t)
}

func TestLoader_UnsupportedScheme(t *testing.T) {
	_, _, err := NewLoaderWith(nil, nil, 0).Load(context.Background(), "s3://bucket/inv.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestNewLoader_HTTPEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	l := NewLoader(config.FetchConfig{TimeoutSecs: 5, MaxRetries: 1, MaxSizeMB: 1})
	name, data, err := l.Load(context.Background(), srv.URL+"/x/y/inv.pdf")
	require.NoError(t, err)
	assert.Equal(t, "inv.pdf", name)
	assert.Equal(t, "%PDF-1.4", string(data))
}
