// Package media resolves inbound image references and re-uploads them to the
// downstream asset store.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const fetchUserAgent = "onemin-relay/1.0 (image fetcher)"

// Relay fetches or decodes image references and uploads them to the asset
// endpoint. It holds no per-request state.
type Relay struct {
	client   *http.Client
	assetURL string
	logger   *slog.Logger
}

func NewRelay(assetURL string, logger *slog.Logger) *Relay {
	return &Relay{
		client:   &http.Client{Timeout: 60 * time.Second},
		assetURL: assetURL,
		logger:   logger,
	}
}

// Result is the outcome of one request's media processing. Paths holds the
// downstream references of the successfully uploaded images in input order;
// AllUploaded is false as soon as any reference failed.
type Result struct {
	Paths       []string
	AllUploaded bool
}

// UploadAll deduplicates refs by exact string equality, resolves and uploads
// each unique reference concurrently, and joins the results. Per-item
// failures are captured independently; the caller decides the request-level
// policy.
func (r *Relay) UploadAll(ctx context.Context, refs []string, apiKey string) Result {
	unique := dedupe(refs)
	if len(unique) == 0 {
		return Result{AllUploaded: true}
	}

	paths := make([]string, len(unique))
	errs := make([]error, len(unique))

	var wg sync.WaitGroup

	for i, ref := range unique {
		wg.Add(1)

		go func(i int, ref string) {
			defer wg.Done()

			path, err := r.uploadOne(ctx, ref, apiKey)
			if err != nil {
				errs[i] = err
				return
			}

			paths[i] = path
		}(i, ref)
	}

	wg.Wait()

	result := Result{AllUploaded: true}

	for i := range unique {
		if errs[i] != nil {
			result.AllUploaded = false

			if r.logger != nil {
				r.logger.Error("Image processing failed", "error", errs[i])
			}

			continue
		}

		result.Paths = append(result.Paths, paths[i])
	}

	return result
}

func dedupe(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	unique := make([]string, 0, len(refs))

	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}

		seen[ref] = struct{}{}
		unique = append(unique, ref)
	}

	return unique
}

func (r *Relay) uploadOne(ctx context.Context, ref, apiKey string) (string, error) {
	data, err := r.resolve(ctx, ref)
	if err != nil {
		return "", err
	}

	return r.upload(ctx, data, apiKey)
}

// resolve turns a reference into raw bytes: data URIs are decoded in place,
// everything else is fetched.
func (r *Relay) resolve(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURI(ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("build image fetch request: %w", err)
	}

	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}

	return data, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URI")
	}

	payload := uri[comma+1:]

	if strings.Contains(uri[:comma], "base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data URI: %w", err)
		}

		return data, nil
	}

	return []byte(payload), nil
}

type uploadResponse struct {
	FileContent struct {
		Path string `json:"path"`
	} `json:"fileContent"`
}

// upload sends the bytes as a multipart body and returns the downstream path
// reference.
func (r *Relay) upload(ctx context.Context, data []byte, apiKey string) (string, error) {
	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("asset", "relay-"+uuid.NewString()+".png")
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write multipart body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.assetURL, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("API-KEY", apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload image: unexpected status %d", resp.StatusCode)
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}

	if parsed.FileContent.Path == "" {
		return "", fmt.Errorf("upload response carries no asset path")
	}

	return parsed.FileContent.Path, nil
}
