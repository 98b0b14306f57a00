package media

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAssetServer(t *testing.T, uploads *atomic.Int32, wantKey string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		if wantKey != "" {
			assert.Equal(t, wantKey, r.Header.Get("API-KEY"))
		}

		require.NoError(t, r.ParseMultipartForm(1 << 20))

		file, header, err := r.FormFile("asset")
		require.NoError(t, err)
		defer file.Close()

		assert.NotEmpty(t, header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fileContent":{"path":"assets/stored.png"}}`))
	}))
}

func TestUploadAllDeduplicates(t *testing.T) {
	var fetches, uploads atomic.Int32

	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte("fake image bytes"))
	}))
	defer imageServer.Close()

	assetServer := newAssetServer(t, &uploads, "test-key")
	defer assetServer.Close()

	relay := NewRelay(assetServer.URL, testLogger())

	ref := imageServer.URL + "/cat.png"
	result := relay.UploadAll(context.Background(), []string{ref, ref, ref}, "test-key")

	assert.True(t, result.AllUploaded)
	assert.Equal(t, []string{"assets/stored.png"}, result.Paths)

	// One fetch and one upload for three identical references.
	assert.Equal(t, int32(1), fetches.Load())
	assert.Equal(t, int32(1), uploads.Load())
}

func TestUploadAllDataURI(t *testing.T) {
	var uploads atomic.Int32

	assetServer := newAssetServer(t, &uploads, "")
	defer assetServer.Close()

	relay := NewRelay(assetServer.URL, testLogger())

	encoded := base64.StdEncoding.EncodeToString([]byte("png bytes"))
	result := relay.UploadAll(context.Background(), []string{"data:image/png;base64," + encoded}, "key")

	assert.True(t, result.AllUploaded)
	assert.Equal(t, []string{"assets/stored.png"}, result.Paths)
	assert.Equal(t, int32(1), uploads.Load())
}

func TestUploadAllEmptyInput(t *testing.T) {
	relay := NewRelay("http://unused.invalid", testLogger())

	result := relay.UploadAll(context.Background(), nil, "key")

	assert.True(t, result.AllUploaded)
	assert.Empty(t, result.Paths)
}

func TestUploadAllCapturesPerItemFailures(t *testing.T) {
	var uploads atomic.Int32

	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		_, _ = w.Write([]byte("fake image bytes"))
	}))
	defer imageServer.Close()

	assetServer := newAssetServer(t, &uploads, "")
	defer assetServer.Close()

	relay := NewRelay(assetServer.URL, testLogger())

	result := relay.UploadAll(context.Background(), []string{
		imageServer.URL + "/ok.png",
		imageServer.URL + "/missing.png",
	}, "key")

	// One reference failed, so the whole set is flagged.
	assert.False(t, result.AllUploaded)
	assert.Equal(t, []string{"assets/stored.png"}, result.Paths)
}

func TestUploadAllMalformedDataURI(t *testing.T) {
	relay := NewRelay("http://unused.invalid", testLogger())

	result := relay.UploadAll(context.Background(), []string{"data:image/png;base64"}, "key")

	assert.False(t, result.AllUploaded)
	assert.Empty(t, result.Paths)
}

func TestUploadRejectsMissingAssetPath(t *testing.T) {
	assetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer assetServer.Close()

	relay := NewRelay(assetServer.URL, testLogger())

	encoded := base64.StdEncoding.EncodeToString([]byte("png bytes"))
	result := relay.UploadAll(context.Background(), []string{"data:image/png;base64," + encoded}, "key")

	assert.False(t, result.AllUploaded)
}
