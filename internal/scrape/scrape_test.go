package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/faultlinehq/faultline/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func pageHTML(body string) string {
	return "<html><head><title>Repair Notes</title></head><body><article>" + body + "</article></body></html>"
}

func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func longText(s string) string {
	return strings.Repeat(s+" ", 40)
}

func TestFetchSuccess(t *testing.T) {
	srv := serveHTML(t, "Replace the valve.")
	f := NewFetcher(5 * time.Second)

	body, err := f.Fetch(context.Background(), srv.URL, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "Replace the valve.") {
		t.Error("expected page body in response")
	}
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	_, err := f.Fetch(context.Background(), srv.URL, false, nil)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestFetchRobotsDisallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private")
			return
		}
		fmt.Fprint(w, pageHTML("secret"))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	_, err := f.Fetch(context.Background(), srv.URL+"/private/page", true, nil)
	if !errors.Is(err, ErrDisallowed) {
		t.Errorf("expected ErrDisallowed, got %v", err)
	}
}

func TestFetchRobotsFailOpen(t *testing.T) {
	// No robots.txt at all: the policy check must not block the fetch.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, pageHTML("Replace the valve assembly."))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	body, err := f.Fetch(context.Background(), srv.URL+"/page", true, nil)
	if err != nil {
		t.Fatalf("expected fail-open fetch to succeed, got %v", err)
	}
	if !strings.Contains(body, "valve assembly") {
		t.Error("expected page content")
	}
}

func TestFetchAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, pageHTML("ok content here"))
	}))
	defer srv.Close()

	t.Setenv("TEST_SOURCE_KEY", "secret-token")
	envName := "TEST_SOURCE_KEY"

	f := NewFetcher(5 * time.Second)
	if _, err := f.Fetch(context.Background(), srv.URL, false, &envName); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
}

func TestParsePagePrefersArticle(t *testing.T) {
	html := "<html><head><title>Manual</title></head><body>" +
		"<nav>Home Products About</nav>" +
		"<article>" + longText("Replace the pump seal when leaking.") + "</article>" +
		"<footer>Copyright</footer></body></html>"

	title, text := ParsePage(html, "https://example.com/manual")
	if title != "Manual" {
		t.Errorf("expected title 'Manual', got %q", title)
	}
	if !strings.Contains(text, "Replace the pump seal") {
		t.Error("expected article text")
	}
	if strings.Contains(text, "Copyright") || strings.Contains(text, "Home Products") {
		t.Error("expected nav and footer stripped")
	}
}

func TestParsePageBodyFallback(t *testing.T) {
	html := "<html><body><p>Short note about the fan.</p></body></html>"
	_, text := ParsePage(html, "https://example.com")
	if !strings.Contains(text, "Short note about the fan.") {
		t.Errorf("expected body fallback text, got %q", text)
	}
}

func TestCleanText(t *testing.T) {
	got := cleanText("  a\n\n b\t\tc  ")
	if got != "a b c" {
		t.Errorf("expected collapsed whitespace, got %q", got)
	}
}

func TestTruncateWordAware(t *testing.T) {
	s := "replace the valve assembly now"
	got := Truncate(s, 20)
	if len(got) > 20 {
		t.Errorf("expected at most 20 chars, got %d", len(got))
	}
	if strings.HasSuffix(got, "asse") {
		t.Errorf("expected cut on a word boundary, got %q", got)
	}
	if Truncate(s, 100) != s {
		t.Error("expected text under limit unchanged")
	}
}

func TestSearchAllIsolatesFailures(t *testing.T) {
	db := openTestDB(t)

	good1 := serveHTML(t, longText("Pump leaking: replace the seal kit."))
	good2 := serveHTML(t, longText("Valve stuck: clean the valve seat."))
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	t.Cleanup(slow.Close)

	db.InsertSource("Good One", good1.URL, "website", false)
	db.InsertSource("Good Two", good2.URL, "website", false)
	db.InsertSource("Broken", slow.URL, "website", false)

	o := NewOrchestrator(db, nil, Options{Timeout: 300 * time.Millisecond, RequestsPerSecond: 100})
	result, err := o.SearchAll(context.Background(), "pump leaking valve")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.SourcesAttempted) != 3 {
		t.Errorf("expected 3 attempted, got %d", len(result.SourcesAttempted))
	}
	if len(result.SourcesFailed) != 1 || result.SourcesFailed[0] != "Broken" {
		t.Errorf("expected only 'Broken' to fail, got %v", result.SourcesFailed)
	}
	if len(result.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(result.Results))
	}

	// Every attempted source gets its last_scraped touched, failures included.
	sources, _ := db.GetAllSources()
	for _, s := range sources {
		if s.LastScraped == nil {
			t.Errorf("expected last_scraped set for %s", s.Name)
		}
	}
}

func TestSearchAllRanksByRelevance(t *testing.T) {
	db := openTestDB(t)

	relevant := serveHTML(t, longText("Pump leaking fluid from valve, replace seal."))
	offTopic := serveHTML(t, longText("Annual company picnic schedule and menu."))

	db.InsertSource("Off Topic", offTopic.URL, "website", false)
	db.InsertSource("Relevant", relevant.URL, "website", false)

	o := NewOrchestrator(db, nil, Options{Timeout: 5 * time.Second, RequestsPerSecond: 100})
	result, err := o.SearchAll(context.Background(), "pump leaking valve")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Results))
	}
	if result.Results[0].SourceName != "Relevant" {
		t.Errorf("expected most relevant first, got %q", result.Results[0].SourceName)
	}
	if result.Results[0].RelevanceScore < result.Results[1].RelevanceScore {
		t.Error("expected descending relevance order")
	}
}

func TestSearchAllCapsResults(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 3; i++ {
		srv := serveHTML(t, longText("Pump maintenance guide chapter."))
		db.InsertSource(fmt.Sprintf("Source %d", i), srv.URL, "website", false)
	}

	o := NewOrchestrator(db, nil, Options{Timeout: 5 * time.Second, RequestsPerSecond: 100, TopResults: 1})
	result, err := o.SearchAll(context.Background(), "pump")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Results) != 1 {
		t.Errorf("expected results capped at 1, got %d", len(result.Results))
	}
}

func TestSearchAllNoActiveSources(t *testing.T) {
	db := openTestDB(t)
	o := NewOrchestrator(db, nil, Options{})

	result, err := o.SearchAll(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Results) != 0 || len(result.SourcesAttempted) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestSearchFeedSource(t *testing.T) {
	db := openTestDB(t)

	feed := `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Maintenance Bulletins</title>
<item><title>Pump seal advisory</title><link>https://example.com/1</link>
<description>Replace the pump seal kit when leaking is observed.</description></item>
<item><title>Fan bearing notice</title><link>https://example.com/2</link>
<description>Inspect fan bearings every 500 hours.</description></item>
</channel></rss>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feed)
	}))
	defer srv.Close()

	db.InsertSource("Bulletins", srv.URL, "feed", false)

	o := NewOrchestrator(db, nil, Options{Timeout: 5 * time.Second, RequestsPerSecond: 100})
	result, err := o.SearchAll(context.Background(), "pump seal leaking")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 feed items, got %d", len(result.Results))
	}
	if result.Results[0].Title != "Pump seal advisory" {
		t.Errorf("expected pump advisory ranked first, got %q", result.Results[0].Title)
	}
	if result.Results[0].URL != "https://example.com/1" {
		t.Errorf("expected item link, got %q", result.Results[0].URL)
	}
}
