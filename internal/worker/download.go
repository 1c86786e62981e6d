package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

// Downloader fetches feed documents with a per-request timeout and
// jittered retries.
type Downloader struct {
	Client   *http.Client
	Attempts int
	Backoff  time.Duration
	Logger   *slog.Logger
}

func NewDownloader(timeout time.Duration, attempts int, logger *slog.Logger) *Downloader {
	return &Downloader{
		Client:   &http.Client{Timeout: timeout},
		Attempts: attempts,
		Backoff:  200 * time.Millisecond,
		Logger:   logger,
	}
}

// Get returns the body of url. Server errors and 429s are retried; other
// 4xx responses fail at once.
func (d *Downloader) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	start := time.Now()
	err := retry(ctx, max(d.Attempts, 1), d.Backoff, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := d.Client.Do(req)
		if err != nil {
			d.Logger.Warn("download attempt failed", "url", url, "error", err)
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			d.Logger.Warn("download attempt failed", "url", url, "status", resp.Status)
			err := fmt.Errorf("GET %s: %s", url, resp.Status)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return permanent(err)
			}
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	d.Logger.Info("downloaded", "url", url, "size", humanize.Bytes(uint64(len(body))), "elapsed", time.Since(start).Round(time.Millisecond))
	return body, nil
}
