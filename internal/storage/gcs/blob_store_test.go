package gcs_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/rankwatch/internal/storage/gcs"
)

func newTestClient(t *testing.T, handler http.Handler) *gcsstorage.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := gcsstorage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := gcs.New(nil, gcs.Config{Bucket: "b"})
	require.Error(t, err)

	client := newTestClient(t, http.NotFoundHandler())
	_, err = gcs.New(client, gcs.Config{Bucket: " "})
	require.Error(t, err)
}

func TestPutObjectUploadsToBucket(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body string
		path string
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		mu.Lock()
		body = string(raw)
		path = r.URL.Path
		mu.Unlock()
		fmt.Fprintln(w, `{"name":"pages/msk/page-1.html","bucket":"rank-archive"}`)
	}))

	store, err := gcs.New(client, gcs.Config{Bucket: "rank-archive", Metadata: map[string]string{"source": "rankwatch"}})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "pages/msk/page-1.html", "text/html", bytes.NewReader([]byte("<html>cards</html>")))
	require.NoError(t, err)
	require.Equal(t, "gs://rank-archive/pages/msk/page-1.html", uri)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, strings.Contains(path, "/b/rank-archive/o"), "unexpected upload path %s", path)
	require.Contains(t, body, "<html>cards</html>")
	require.Contains(t, body, "rankwatch")
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	store, err := gcs.New(client, gcs.Config{Bucket: "rank-archive"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.PutObject(ctx, "page.html", "text/html", bytes.NewReader([]byte("x")))
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), "", "text/html", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestPingReportsMissingBucket(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/b/present") {
			fmt.Fprintln(w, `{"name":"present"}`)
			return
		}
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}))

	present, err := gcs.New(client, gcs.Config{Bucket: "present"})
	require.NoError(t, err)
	require.NoError(t, present.Ping(context.Background()))

	missing, err := gcs.New(client, gcs.Config{Bucket: "missing"})
	require.NoError(t, err)
	require.Error(t, missing.Ping(context.Background()))
}
