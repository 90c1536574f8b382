package whttp

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/kashisync/kashisync/pkg/callerr"
	"golang.org/x/net/html"
)

const UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
	Body    string
}

type WHTTPRes struct {
	StatusCode     int
	ResponseLength int
	HTTPTitle      string
	BodyString     string
	Header         http.Header
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	Timeout  time.Duration // per attempt
	RetryMax int
	// Backoff is the fixed wait between attempts. Zero keeps retryablehttp's
	// exponential default.
	Backoff time.Duration
}

// NewClient builds a retrying client. The last response is passed through when retries
// are exhausted so callers can see the final status code.
func NewClient(opts ClientOptions) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.Logger = log.New(io.Discard, "", 0)
	c.RetryMax = opts.RetryMax
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Timeout > 0 {
		c.HTTPClient.Timeout = opts.Timeout
	}
	if opts.Backoff > 0 {
		fixed := opts.Backoff
		c.Backoff = func(_, _ time.Duration, _ int, _ *http.Response) time.Duration { return fixed }
	}
	return c
}

var defaultClient = NewClient(ClientOptions{Timeout: 30 * time.Second, RetryMax: 2, Backoff: 2 * time.Second})

// SendHTTPRequest performs wReq. Non-2xx statuses are returned as a response, not an
// error; transport failures come back as *callerr.Error of kind Timeout.
func SendHTTPRequest(ctx context.Context, wReq *WHTTPReq, client *retryablehttp.Client) (*WHTTPRes, error) {
	if client == nil {
		client = defaultClient
	}
	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}

	var body interface{}
	if wReq.Body != "" {
		body = strings.NewReader(wReq.Body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, wReq.URL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Cache-Control", "no-transform")
	req.Header.Set("Accept-Language", "ja,en;q=0.8")
	for _, h := range wReq.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, callerr.FromTransport(method+" "+wReq.URL, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, callerr.FromTransport(method+" "+wReq.URL, err)
	}

	wRes := &WHTTPRes{
		StatusCode: resp.StatusCode,
		BodyString: string(bodyBytes),
		Header:     resp.Header,
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		if title, ok := getHTMLTitle(wRes.BodyString); ok {
			wRes.HTTPTitle = strings.ToValidUTF8(strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(title, "\n", ""), "\r", "")), "")
		}
	}
	wRes.ResponseLength = utf8.RuneCountInString(wRes.BodyString)
	return wRes, nil
}

// CheckStatus turns a non-2xx response into a tagged error.
func CheckStatus(op string, res *WHTTPRes) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	detail := res.BodyString
	if len(detail) > 200 {
		detail = detail[:200]
	}
	return callerr.FromStatus(op, res.StatusCode, strings.TrimSpace(detail))
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
		result, ok := traverse(c)
		if ok {
			return result, ok
		}
	}

	return "", false
}

func getHTMLTitle(body string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	return traverse(doc)
}
