package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/"
     xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Haberler</title>
    <item>
      <title>Deprem oldu</title>
      <link>https://x.com/haber/deprem</link>
      <description>&lt;p&gt;K&#305;sa &amp;amp; net özet&lt;/p&gt;</description>
      <content:encoded><![CDATA[<p>PLACEHOLDER</p>]]></content:encoded>
      <pubDate>Mon, 02 Mar 2026 10:30:00 GMT</pubDate>
      <media:thumbnail url="https://cdn.x.com/deprem.jpg"/>
    </item>
    <item>
      <title>Kısa haber</title>
      <link>https://x.com/haber/kisa</link>
      <description>çok kısa</description>
      <enclosure url="https://cdn.x.com/kisa.jpg" type="image/jpeg"/>
    </item>
    <item>
      <title>Linksiz</title>
      <description>atılmalı</description>
    </item>
  </channel>
</rss>`

func rssWithLongContent() string {
	return strings.Replace(sampleRSS, "PLACEHOLDER", strings.Repeat("uzun metin ", 40), 1)
}

func TestFetchParsesAndNormalizes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Last-Modified", "Mon, 02 Mar 2026 10:00:00 GMT")
		_, _ = w.Write([]byte(rssWithLongContent()))
	}))
	defer srv.Close()

	p := New(Config{})
	res, err := p.Fetch(context.Background(), srv.URL, "", "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.NotModified {
		t.Fatal("fresh fetch must not be not-modified")
	}
	if res.Etag != `"v2"` || res.LastModified == "" {
		t.Fatalf("validators not captured: %+v", res)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items (linkless skipped), got %d", len(res.Items))
	}

	first := res.Items[0]
	if first.Title != "Deprem oldu" {
		t.Fatalf("title = %q", first.Title)
	}
	if strings.Contains(first.Content, "<p>") {
		t.Fatalf("content not HTML-stripped: %q", first.Content)
	}
	if !strings.HasPrefix(first.Content, "uzun metin") {
		t.Fatalf("content:encoded not preferred: %q", first.Content)
	}
	if !strings.Contains(first.Summary, "Kısa & net özet") {
		t.Fatalf("entities not decoded in summary: %q", first.Summary)
	}
	if first.ImageURL != "https://cdn.x.com/deprem.jpg" {
		t.Fatalf("media thumbnail not used: %q", first.ImageURL)
	}
	if first.PublishedAt == nil {
		t.Fatal("published date missing")
	}
	if first.Partial {
		t.Fatal("long item must not be partial")
	}

	second := res.Items[1]
	if !second.Partial {
		t.Fatal("short item must be partial")
	}
	if second.ImageURL != "https://cdn.x.com/kisa.jpg" {
		t.Fatalf("enclosure image not used: %q", second.ImageURL)
	}
}

func TestFetchConditionalNotModified(t *testing.T) {
	t.Parallel()

	var gotEtag, gotModified string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEtag = r.Header.Get("If-None-Match")
		gotModified = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	p := New(Config{})
	res, err := p.Fetch(context.Background(), srv.URL, `"v1"`, "Sun, 01 Mar 2026 09:00:00 GMT")
	if err != nil {
		t.Fatalf("304 must be success, got error %v", err)
	}
	if !res.NotModified {
		t.Fatal("expected not-modified result")
	}
	if len(res.Items) != 0 {
		t.Fatalf("not-modified must carry zero items, got %d", len(res.Items))
	}
	if res.Etag != "" || res.LastModified != "" {
		t.Fatal("not-modified must not carry validators for the caller to overwrite")
	}
	if gotEtag != `"v1"` || gotModified == "" {
		t.Fatalf("conditional headers not sent: etag=%q modified=%q", gotEtag, gotModified)
	}
}

func TestFetchServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(Config{})
	if _, err := p.Fetch(context.Background(), srv.URL, "", ""); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestExtractImageFromContentScan(t *testing.T) {
	t.Parallel()

	const rss = `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
	<item><title>a</title><link>https://x.com/a</link>
	<description><![CDATA[<p>metin</p><img src="https://cdn.x.com/inline.png">]]></description>
	</item></channel></rss>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(rss))
	}))
	defer srv.Close()

	p := New(Config{})
	res, err := p.Fetch(context.Background(), srv.URL, "", "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ImageURL != "https://cdn.x.com/inline.png" {
		t.Fatalf("inline img scan failed: %+v", res.Items)
	}
}
