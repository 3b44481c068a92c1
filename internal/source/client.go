package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// defaultTimeout bounds list and auth calls. Downloads use the caller's
	// context only, since video bodies can take minutes.
	defaultTimeout = 30 * time.Second

	userAgent = "channel-video-relay/1.0"
)

// Client reads one channel from the feed gateway.
type Client struct {
	httpClient     *http.Client
	downloadClient *http.Client
	baseURL        string
	channel        string
	token          string
}

// NewClient creates a Client for channel on the gateway at baseURL.
// token is sent as a bearer credential on every request.
func NewClient(baseURL, channel, token string) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: defaultTimeout},
		downloadClient: &http.Client{},
		baseURL:        baseURL,
		channel:        channel,
		token:          token,
	}
}

// Channel returns the channel this client reads.
func (c *Client) Channel() string { return c.channel }

// Authenticate checks that the gateway accepts the configured credentials.
func (c *Client) Authenticate(ctx context.Context) error {
	resp, err := c.get(ctx, c.httpClient, "/me")
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus("authenticate", resp); err != nil {
		return err
	}
	log.Info().Str("channel", c.channel).Msg("Message source session verified")
	return nil
}

// ListMessages returns up to limit messages with id > afterID in ascending
// id order.
func (c *Client) ListMessages(ctx context.Context, afterID int64, limit int) ([]Message, error) {
	q := url.Values{
		"after_id": {strconv.FormatInt(afterID, 10)},
		"limit":    {strconv.Itoa(limit)},
	}
	endpoint := fmt.Sprintf("/channels/%s/messages?%s", url.PathEscape(c.channel), q.Encode())

	startTime := time.Now()
	resp, err := c.get(ctx, c.httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer resp.Body.Close()
	log.Debug().
		Int("statusCode", resp.StatusCode).
		Int64("afterId", afterID).
		Dur("duration", time.Since(startTime)).
		Msg("Message source list response")

	if err := checkStatus("list messages", resp); err != nil {
		return nil, err
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("list messages: parse response: %w", err)
	}

	out := make([]Message, 0, len(body.Messages))
	for _, w := range body.Messages {
		out = append(out, w.toMessage())
	}
	return out, nil
}

// Download streams the media of documentID in message messageID into w and
// returns the number of bytes written.
func (c *Client) Download(ctx context.Context, messageID int64, documentID string, w io.Writer) (int64, error) {
	endpoint := fmt.Sprintf("/channels/%s/messages/%d/media/%s",
		url.PathEscape(c.channel), messageID, url.PathEscape(documentID))

	resp, err := c.get(ctx, c.downloadClient, endpoint)
	if err != nil {
		return 0, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("download message %d document %s: %w", messageID, documentID, ErrMediaNotFound)
	}
	if err := checkStatus("download media", resp); err != nil {
		return 0, err
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download media: copy body after %d bytes: %w", n, err)
	}
	return n, nil
}

// --- Internal helpers ---

func (c *Client) get(ctx context.Context, hc *http.Client, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", userAgent)

	log.Trace().Str("method", http.MethodGet).Str("path", endpoint).Msg("Message source request")
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return resp, nil
}

// checkStatus maps non-2xx responses onto the package's error taxonomy.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: credentials rejected: %w", ErrSourceUnavailable, statusErr)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, statusErr)
	default:
		return statusErr
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
