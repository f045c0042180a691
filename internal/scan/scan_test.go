package scan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const article = `<!doctype html>
<html><body>
<header class="site">Blog</header>
<article id="first" class="blogPost featured">{{body}}</article>
<aside class="blogPostSidebar">not a match</aside>
<section class="blogPost">three short words</section>
</body></html>`

// TestScanFindsCandidates reports matches in document order with word counts.
func TestScanFindsCandidates(t *testing.T) {
	t.Parallel()

	body := strings.Replace(article, "{{body}}", strings.Repeat("word ", 460), 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	report, err := New(Config{}).Scan(context.Background(), srv.URL, "blogPost")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, report.StatusCode)
	require.Len(t, report.Candidates, 2)
	require.Equal(t, Candidate{
		Index:       0,
		ElementID:   "first",
		Tag:         "article",
		Words:       460,
		ReadingTime: 2 * time.Minute,
	}, report.Candidates[0])
	require.Equal(t, 1, report.Candidates[1].Index)
	require.Equal(t, "section", report.Candidates[1].Tag)
	require.Equal(t, 3, report.Candidates[1].Words)
	require.Equal(t, 463, report.TotalWords)
	require.Equal(t, 3*time.Minute, report.ReadingTime)
	require.Empty(t, report.RenderHints)
}

// TestScanFlagsClientRenderedPages reports hints for an application shell.
func TestScanFlagsClientRenderedPages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><div id="__next"></div><script src="/app.js"></script></body></html>`))
	}))
	t.Cleanup(srv.Close)

	report, err := New(Config{}).Scan(context.Background(), srv.URL, "blogPost")
	require.NoError(t, err)
	require.Empty(t, report.Candidates)
	require.Equal(t, []string{"small script-heavy document", "marker __next"}, report.RenderHints)
}

// TestScanNoMatches returns an empty report rather than an error.
func TestScanNoMatches(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>nothing here</p></body></html>`))
	}))
	t.Cleanup(srv.Close)

	report, err := New(Config{}).Scan(context.Background(), srv.URL, "blogPost")
	require.NoError(t, err)
	require.Empty(t, report.Candidates)
	require.Zero(t, report.ReadingTime)
}

// TestScanHTTPError surfaces non-2xx responses.
func TestScanHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{}).Scan(context.Background(), srv.URL, "blogPost")
	require.Error(t, err)
}

// TestScanCancelAbortsRequest stops the in-flight request when ctx is canceled.
func TestScanCancelAbortsRequest(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	aborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
			close(aborted)
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	start := time.Now()
	_, err := New(Config{Timeout: 10 * time.Second}).Scan(ctx, srv.URL, "blogPost")
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 2*time.Second)

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("request was not aborted on the server side")
	}
}

// TestScanValidation requires a class name.
func TestScanValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}).Scan(context.Background(), "http://example.invalid", "")
	require.Error(t, err)
}

// TestReadingTime rounds up to whole minutes.
func TestReadingTime(t *testing.T) {
	t.Parallel()

	require.Zero(t, readingTime(0, 230))
	require.Equal(t, time.Minute, readingTime(1, 230))
	require.Equal(t, time.Minute, readingTime(230, 230))
	require.Equal(t, 2*time.Minute, readingTime(231, 230))
	require.Equal(t, `[class~="blogPost"]`, classSelector("blogPost"))
}
