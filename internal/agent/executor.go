package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// fetchTimeout bounds one whole-file download. A transfer that hangs past
// it surfaces as an error status instead of a forever-downloading file.
const fetchTimeout = 10 * time.Minute

// Executor retrieves files from the server's authenticated serving surface
// and writes them to local storage.
type Executor struct {
	client    *http.Client
	serverURL string
	apiKey    string
	destDir   string
}

// NewExecutor creates an executor writing into destDir, creating it if needed.
func NewExecutor(serverURL, apiKey, destDir string) (*Executor, error) {
	abs, err := filepath.Abs(destDir)
	if err != nil {
		return nil, fmt.Errorf("resolve dest dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create dest dir: %w", err)
	}
	return &Executor{
		client:    &http.Client{Timeout: fetchTimeout},
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		destDir:   abs,
	}, nil
}

// Fetch downloads file from the server and installs it under the same name.
// The body lands in a temp file first and is renamed into place only after a
// full, verified read, so an interrupted transfer never leaves a file that
// looks complete. Overwrites any existing file of the same name.
func (e *Executor) Fetch(ctx context.Context, file string) error {
	if file == "" || file != filepath.Base(file) || strings.HasPrefix(file, ".") {
		return fmt.Errorf("invalid file name %q", file)
	}

	reqURL := e.serverURL + "/secure-file/" + url.PathEscape(file)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", file, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("fetch %s: server returned %d: %s", file, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	tmp, err := os.CreateTemp(e.destDir, ".ferry-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", file, err)
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		tmp.Close()
		return fmt.Errorf("write %s: truncated body: got %d of %d bytes", file, written, resp.ContentLength)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", file, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", file, err)
	}

	if err := os.Rename(tmpName, filepath.Join(e.destDir, file)); err != nil {
		return fmt.Errorf("install %s: %w", file, err)
	}
	return nil
}
