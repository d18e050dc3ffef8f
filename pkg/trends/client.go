package trends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://trends.google.com"
	defaultUserAgent = "trendwatch/1.0"

	explorePath  = "/trends/api/explore"
	timelinePath = "/trends/api/widgetdata/multiline"
)

// QueryParams are the service-side query knobs, fixed per client.
type QueryParams struct {
	Geo      string // e.g. "CL"
	Lang     string // hl parameter, e.g. "es-CL"
	TZOffset int    // minutes west of UTC, e.g. 360
	Category int
	Property string // "", "news", "images", "youtube", "froogle"
}

// Option configures the HTTP client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit paces outgoing requests at r per second.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) { c.userAgent = ua }
}

type httpClient struct {
	baseURL   string
	userAgent string
	params    QueryParams
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a QueryService backed by the trends HTTP API. Each
// InterestOverTime call is a single logical attempt: callers own retry
// policy.
func NewClient(params QueryParams, opts ...Option) QueryService {
	jar, _ := cookiejar.New(nil)
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		params:    params,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Jar:     jar,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// comparisonItem is one term in the explore request payload.
type comparisonItem struct {
	Keyword string `json:"keyword"`
	Geo     string `json:"geo"`
	Time    string `json:"time"`
}

type exploreRequest struct {
	ComparisonItem []comparisonItem `json:"comparisonItem"`
	Category       int              `json:"category"`
	Property       string           `json:"property"`
}

type exploreResponse struct {
	Widgets []struct {
		ID      string          `json:"id"`
		Token   string          `json:"token"`
		Request json.RawMessage `json:"request"`
	} `json:"widgets"`
}

type timelineResponse struct {
	Default struct {
		TimelineData []struct {
			Time    string    `json:"time"` // unix seconds, as a string
			Value   []float64 `json:"value"`
			HasData []bool    `json:"hasData"`
		} `json:"timelineData"`
	} `json:"default"`
}

// InterestOverTime implements QueryService. It resolves a widget token
// via the explore endpoint, then fetches the multiline timeline.
func (c *httpClient) InterestOverTime(ctx context.Context, terms []string, window Window) (Series, error) {
	if len(terms) == 0 {
		return Series{}, eris.New("trends: no terms")
	}
	if len(terms) > 5 {
		return Series{}, eris.Errorf("trends: %d terms exceeds service limit of 5", len(terms))
	}

	token, widgetReq, err := c.explore(ctx, terms, window)
	if err != nil {
		return Series{}, err
	}

	return c.timeline(ctx, terms, token, widgetReq)
}

func (c *httpClient) explore(ctx context.Context, terms []string, window Window) (string, json.RawMessage, error) {
	items := make([]comparisonItem, len(terms))
	for i, term := range terms {
		items[i] = comparisonItem{Keyword: term, Geo: c.params.Geo, Time: window.Timeframe()}
	}
	payload, err := json.Marshal(exploreRequest{
		ComparisonItem: items,
		Category:       c.params.Category,
		Property:       c.params.Property,
	})
	if err != nil {
		return "", nil, eris.Wrap(err, "trends: marshal explore request")
	}

	q := url.Values{}
	q.Set("hl", c.params.Lang)
	q.Set("tz", strconv.Itoa(c.params.TZOffset))
	q.Set("req", string(payload))

	body, err := c.get(ctx, explorePath, q)
	if err != nil {
		return "", nil, err
	}

	var resp exploreResponse
	if err := json.Unmarshal(stripPrefix(body), &resp); err != nil {
		return "", nil, eris.Wrap(err, "trends: parse explore response")
	}
	for _, w := range resp.Widgets {
		if w.ID == "TIMESERIES" {
			return w.Token, w.Request, nil
		}
	}
	// Fail closed: no guessing which widget carries the timeline.
	return "", nil, eris.New("trends: explore response has no TIMESERIES widget")
}

func (c *httpClient) timeline(ctx context.Context, terms []string, token string, widgetReq json.RawMessage) (Series, error) {
	q := url.Values{}
	q.Set("hl", c.params.Lang)
	q.Set("tz", strconv.Itoa(c.params.TZOffset))
	q.Set("req", string(widgetReq))
	q.Set("token", token)

	body, err := c.get(ctx, timelinePath, q)
	if err != nil {
		return Series{}, err
	}

	var resp timelineResponse
	if err := json.Unmarshal(stripPrefix(body), &resp); err != nil {
		return Series{}, eris.Wrap(err, "trends: parse timeline response")
	}

	series := Series{Terms: terms}
	for _, row := range resp.Default.TimelineData {
		secs, err := strconv.ParseInt(row.Time, 10, 64)
		if err != nil {
			return Series{}, eris.Wrapf(err, "trends: timeline row has unparseable time %q", row.Time)
		}
		point := Point{
			Date:   time.Unix(secs, 0).UTC().Truncate(24 * time.Hour),
			Values: make(map[string]float64, len(terms)),
		}
		for i, term := range terms {
			if i >= len(row.Value) {
				break
			}
			if i < len(row.HasData) && !row.HasData[i] {
				continue
			}
			point.Values[term] = row.Value[i]
		}
		series.Points = append(series.Points, point)
	}
	sort.Slice(series.Points, func(i, j int) bool {
		return series.Points[i].Date.Before(series.Points[j].Date)
	})
	return series, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "trends: rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "trends: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "trends: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "trends: read response body")
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusTooManyRequests:
		return nil, eris.Wrapf(ErrThrottled, "%s", path)
	case http.StatusForbidden, http.StatusNotFound:
		return nil, eris.Wrapf(ErrNotFound, "%s: status %d", path, resp.StatusCode)
	default:
		return nil, eris.Errorf("trends: %s: unexpected status %d: %s", path, resp.StatusCode, truncate(body, 200))
	}
}

// stripPrefix removes the anti-JSON-hijacking prefix the service
// prepends to every response body.
func stripPrefix(body []byte) []byte {
	if i := bytes.IndexByte(body, '{'); i > 0 {
		return body[i:]
	}
	return body
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s... (%d bytes)", b[:n], len(b))
}
