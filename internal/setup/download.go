package setup

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cheggaaa/pb/v3"
)

// Download fetches url into dst. When progress is non-nil a progress bar is
// rendered to it.
func Download(ctx context.Context, client *http.Client, url, dst string, progress io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: status %d", url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if progress != nil {
		bar := pb.New64(resp.ContentLength).
			SetTemplate(pb.Full).
			SetWriter(progress).
			Set(pb.Bytes, true).
			Start()
		defer bar.Finish()
		body = bar.NewProxyReader(resp.Body)
	}

	if err := writeAtomic(dst, body); err != nil {
		return fmt.Errorf("saving %s: %w", dst, err)
	}
	return nil
}
