// Package scan fetches a page's static HTML and reports which elements would
// be tracked as content containers, so a class name can be checked before a
// browser session is started.
package scan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout        = 15 * time.Second
	defaultWordsPerMinute = 230
)

// Config controls the collector.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	RespectRobots  bool
	WordsPerMinute int
	// SmallBodyBytes is the size below which a script-heavy document is
	// treated as client rendered (default 2048).
	SmallBodyBytes int
	Logger         *zap.Logger
}

// Candidate is one element carrying the container class.
type Candidate struct {
	// Index is the element's position among matches, which is also the
	// container ID the tracker assigns on discovery.
	Index       int           `json:"index"`
	ElementID   string        `json:"elementId,omitempty"`
	Tag         string        `json:"tag"`
	Words       int           `json:"words"`
	ReadingTime time.Duration `json:"readingTime"`
}

// Report summarizes a scan.
type Report struct {
	URL         string        `json:"url"`
	StatusCode  int           `json:"statusCode"`
	ClassName   string        `json:"className"`
	Candidates  []Candidate   `json:"candidates"`
	TotalWords  int           `json:"totalWords"`
	ReadingTime time.Duration `json:"readingTime"`
	Duration    time.Duration `json:"duration"`
	// RenderHints are signs the page is built by JavaScript, so the browser
	// may find containers this scan cannot.
	RenderHints []string `json:"renderHints,omitempty"`
}

// Scanner runs scans with a shared transport.
type Scanner struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

// New builds a Scanner.
func New(cfg Config) *Scanner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = defaultWordsPerMinute
	}
	if cfg.SmallBodyBytes <= 0 {
		cfg.SmallBodyBytes = defaultSmallBodyBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{cfg: cfg, transport: newHTTPTransport(), logger: logger}
}

// Scan fetches url and collects every element whose class list contains
// className.
func (s *Scanner) Scan(ctx context.Context, url, className string) (Report, error) {
	if className == "" {
		return Report{}, errors.New("scan: class name is required")
	}
	report := Report{URL: url, ClassName: className, Candidates: []Candidate{}}
	var respErr error
	start := time.Now()

	c := colly.NewCollector(colly.Async(false), colly.StdlibContext(ctx))
	c.WithTransport(s.transport)
	c.IgnoreRobotsTxt = !s.cfg.RespectRobots
	c.SetRequestTimeout(s.cfg.Timeout)
	if s.cfg.UserAgent != "" {
		c.UserAgent = s.cfg.UserAgent
	}

	c.OnResponse(func(r *colly.Response) {
		report.URL = r.Request.URL.String()
		report.StatusCode = r.StatusCode
		if r.StatusCode == http.StatusOK {
			report.RenderHints = renderHints(r.Body, s.cfg.SmallBodyBytes)
		}
	})
	c.OnHTML(classSelector(className), func(e *colly.HTMLElement) {
		words := countWords(e.Text)
		report.Candidates = append(report.Candidates, Candidate{
			Index:       len(report.Candidates),
			ElementID:   e.Attr("id"),
			Tag:         e.Name,
			Words:       words,
			ReadingTime: readingTime(words, s.cfg.WordsPerMinute),
		})
		report.TotalWords += words
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			report.StatusCode = r.StatusCode
		}
		respErr = err
	})

	err := c.Visit(url)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Report{}, fmt.Errorf("scan canceled: %w", ctxErr)
	}
	if err != nil {
		return Report{}, fmt.Errorf("scan visit %s: %w", url, err)
	}
	if respErr != nil {
		return Report{}, fmt.Errorf("scan response %s: %w", url, respErr)
	}

	report.ReadingTime = readingTime(report.TotalWords, s.cfg.WordsPerMinute)
	report.Duration = time.Since(start)
	s.logger.Info("scan complete",
		zap.String("url", report.URL),
		zap.String("class", className),
		zap.Int("candidates", len(report.Candidates)),
		zap.Int("words", report.TotalWords),
	)
	if len(report.RenderHints) > 0 {
		s.logger.Warn("page looks client rendered; the browser may find different containers",
			zap.String("url", report.URL),
			zap.Strings("hints", report.RenderHints),
		)
	}
	return report, nil
}

// classSelector matches elements whose class list contains className,
// without requiring the name to be a valid CSS identifier.
func classSelector(className string) string {
	return "[class~=" + strconv.Quote(className) + "]"
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

func readingTime(words, wpm int) time.Duration {
	if words <= 0 || wpm <= 0 {
		return 0
	}
	minutes := math.Ceil(float64(words) / float64(wpm))
	return time.Duration(minutes) * time.Minute
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
	}
}
