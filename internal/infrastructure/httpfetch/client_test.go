package httpfetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
)

func TestClientSendsFixedHeaders(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NewsIngestTest/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.NotEmpty(t, r.Header.Get("Accept"))
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	client := New(server.Client(), Options{UserAgent: "NewsIngestTest/1.0"})

	body, err := client.Text(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", body)

	raw, err := client.Binary(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("<html>ok</html>"), raw)

	stream, err := client.Stream(context.Background(), server.URL)
	require.NoError(t, err)
	streamed, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	assert.Equal(t, "<html>ok</html>", string(streamed))
}

func TestClientStatusIsNetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.Client(), Options{})
	_, err := client.Text(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorNetwork, crawlerr.TypeOf(err))
}

func TestClientTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := New(server.Client(), Options{Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := client.Binary(context.Background(), server.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClientBinaryRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big" {
			_, _ = w.Write(make([]byte, 65))
			return
		}
		_, _ = w.Write(make([]byte, 64))
	}))
	defer server.Close()

	client := New(server.Client(), Options{MaxBinaryBytes: 64})

	raw, err := client.Binary(context.Background(), server.URL+"/fits")
	require.NoError(t, err)
	assert.Len(t, raw, 64)

	_, err = client.Binary(context.Background(), server.URL+"/big")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorNetwork, crawlerr.TypeOf(err))
	assert.Contains(t, err.Error(), "exceeds 64 bytes")
}
