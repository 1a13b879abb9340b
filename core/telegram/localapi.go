package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/starterbot/core/telegram/netutil"
)

// PublicAPIURL is the hosted Bot API endpoint.
const PublicAPIURL = "https://api.telegram.org"

const probeTimeout = 5 * time.Second

// ProbeResult describes one reachability check of a Bot API server.
type ProbeResult struct {
	URL          string
	Available    bool
	StatusCode   int
	ResponseTime time.Duration
	CheckedAt    time.Time
	Err          error
}

// ErrorText returns a short human-readable failure reason.
func (r ProbeResult) ErrorText() string {
	switch {
	case r.Err != nil:
		if netutil.Classify(r.Err) == "refused" {
			return "Connection refused"
		}
		return netutil.Redact(r.Err.Error())
	case !r.Available && r.StatusCode != 0:
		return fmt.Sprintf("unexpected status %d", r.StatusCode)
	}
	return ""
}

// ProbeLocalAPI checks whether a self-hosted Bot API server answers at baseURL.
// The server replies 404 on its root, so both 200 and 404 count as available.
func ProbeLocalAPI(ctx context.Context, client *http.Client, baseURL string) ProbeResult {
	if client == nil {
		client = http.DefaultClient
	}
	res := ProbeResult{URL: strings.TrimRight(baseURL, "/"), CheckedAt: time.Now()}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		res.Err = err
		return res
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.ResponseTime = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	res.StatusCode = resp.StatusCode
	res.Available = resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound
	return res
}
