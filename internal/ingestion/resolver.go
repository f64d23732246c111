package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"otonote/internal/youtube"
)

// Resolver turns a job's input reference into a local, readable audio file.
//
// Supported references:
//   - an existing local path (used in place, not copied)
//   - a YouTube URL (best audio track is downloaded)
//   - any other http(s) URL (fetched with a plain GET, e.g. a presigned
//     object-store link)
type Resolver struct {
	yt     *youtube.Client
	client *http.Client
}

// NewResolver creates a resolver with a download timeout suited to large
// audio files.
func NewResolver() *Resolver {
	return &Resolver{
		yt:     youtube.NewClient(),
		client: &http.Client{Timeout: 30 * time.Minute},
	}
}

// Resolve fetches the referenced audio into destDir if it is remote and
// returns a local path. A reference with no usable source is an error that
// names the reference.
func (r *Resolver) Resolve(ctx context.Context, inputRef, destDir string) (string, error) {
	if inputRef == "" {
		return "", fmt.Errorf("no audio source: input reference is empty")
	}

	if strings.HasPrefix(inputRef, "http://") || strings.HasPrefix(inputRef, "https://") {
		if youtube.IsYouTubeURL(inputRef) {
			local, err := r.yt.DownloadAudio(ctx, inputRef, destDir)
			if err != nil {
				return "", fmt.Errorf("failed to fetch youtube audio %s: %w", inputRef, err)
			}
			return local, nil
		}
		return r.download(ctx, inputRef, destDir)
	}

	if _, err := os.Stat(inputRef); err != nil {
		return "", fmt.Errorf("no audio source: %s: %w", inputRef, err)
	}
	return inputRef, nil
}

// download fetches a URL into destDir and returns the local path.
func (r *Resolver) download(ctx context.Context, url, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: http %d", url, resp.StatusCode)
	}

	name := path.Base(strings.SplitN(url, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		name = "input.audio"
	}
	local := filepath.Join(destDir, name)

	out, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("failed to create download target: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(local)
		return "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	return local, nil
}
