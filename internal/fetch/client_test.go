package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientFetchSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte("<html><body>merhaba</body></html>"))
	}))
	defer srv.Close()

	c := New(Config{UserAgent: "newswatch-test/1.0", Timeout: 5 * time.Second})
	res, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", res.StatusCode)
	}
	if !strings.Contains(string(res.Body), "merhaba") {
		t.Fatalf("unexpected body %q", res.Body)
	}
	if gotUA != "newswatch-test/1.0" {
		t.Fatalf("expected configured user agent, got %q", gotUA)
	}
	if !strings.Contains(gotAccept, "text/html") {
		t.Fatalf("expected browser accept header, got %q", gotAccept)
	}
	if res.UsedHeadless {
		t.Fatal("lightweight fetch must not report headless")
	}
}

func TestClientFetchAllowsRevisits(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte("<html><body>tekrar</body></html>"))
	}))
	defer srv.Close()

	c := New(Config{Timeout: 5 * time.Second})
	for i := 0; i < 3; i++ {
		res, err := c.Fetch(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("Fetch() attempt %d error = %v", i+1, err)
		}
		if res.StatusCode != http.StatusOK {
			t.Fatalf("attempt %d: unexpected status %d", i+1, res.StatusCode)
		}
	}
	if hits != 3 {
		t.Fatalf("expected 3 requests to reach the server, got %d", hits)
	}
}

func TestClientFetchNonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{Timeout: 5 * time.Second})
	if _, err := c.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 503 response")
	}
}
