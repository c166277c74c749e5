package whttp

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

// Header is a single request header.
type Header struct {
	Name  string
	Value string
}

// Req describes a marketplace page request.
type Req struct {
	URL     string
	Method  string
	Body    string
	Headers []Header
}

// Res is the decoded response.
type Res struct {
	StatusCode     int
	ResponseLength int
	HTTPTitle      string
	BodyString     string
}

// FetchError classifies fetch failures so callers can decide between retry
// escalation and immediate abort.
type FetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s error: %v", e.URL, kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s error: HTTP %d", e.URL, kind, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a FetchError marked transient.
func IsTransient(err error) bool {
	var fe *FetchError
	if asFetchError(err, &fe) {
		return fe.Transient
	}
	return false
}

func asFetchError(err error, target **FetchError) bool {
	for err != nil {
		if fe, ok := err.(*FetchError); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Client wraps retryablehttp with a cookie jar so session-based logins
// survive across page fetches within one scrape cycle.
type Client struct {
	retry     *retryablehttp.Client
	userAgent string
}

// NewClient builds a session client. Transient failures (timeouts, 5xx,
// connection resets) are retried with exponential backoff up to retryMax
// attempts; 4xx responses are never retried.
func NewClient(timeout time.Duration, retryMax int, proxy string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 15 * time.Second
	retryClient.HTTPClient.Timeout = timeout
	retryClient.HTTPClient.Jar = jar

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		retryClient.HTTPClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Client{retry: retryClient, userAgent: defaultUserAgent}, nil
}

// SetUserAgent overrides the default user agent for subsequent requests.
func (c *Client) SetUserAgent(ua string) {
	if ua != "" {
		c.userAgent = ua
	}
}

// Do sends a request through the session client and classifies the outcome.
func (c *Client) Do(ctx context.Context, wReq *Req) (*Res, error) {
	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if wReq.Body != "" {
		body = strings.NewReader(wReq.Body)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, wReq.URL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("Cache-Control", "no-transform")
	for _, h := range wReq.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := c.retry.Do(req)
	if err != nil {
		// retryablehttp exhausted its retries: transient by taxonomy.
		return nil, &FetchError{URL: wReq.URL, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: wReq.URL, Transient: true, Err: err}
	}

	wRes := &Res{
		StatusCode: resp.StatusCode,
		BodyString: string(bodyBytes),
	}
	if title, ok := getHTMLTitle(wRes.BodyString); ok {
		wRes.HTTPTitle = strings.ToValidUTF8(strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(title, "\n", ""), "\r", "")), "")
	}
	wRes.ResponseLength = utf8.RuneCountInString(wRes.BodyString)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return wRes, nil
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return wRes, &FetchError{URL: wReq.URL, StatusCode: resp.StatusCode, Transient: false}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return wRes, &FetchError{URL: wReq.URL, StatusCode: resp.StatusCode, Transient: true}
	default:
		return wRes, &FetchError{URL: wReq.URL, StatusCode: resp.StatusCode, Transient: false}
	}
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if result, ok := traverse(c); ok {
			return result, ok
		}
	}
	return "", false
}

func getHTMLTitle(requestBody string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(requestBody))
	if err != nil {
		return "", false
	}
	return traverse(doc)
}
