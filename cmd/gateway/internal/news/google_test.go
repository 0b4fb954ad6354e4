package news_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/news"
)

const feed = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
<title>"Stock Market" - Google News</title>
<link>https://news.google.com/search?q=Stock+Market</link>
<item>
<title>Sensex climbs 500 points - Reuters</title>
<link>https://news.google.com/articles/abc</link>
<guid isPermaLink="false">abc</guid>
<pubDate>Mon, 19 Oct 2026 09:15:00 GMT</pubDate>
<description>&lt;a href="https://example.com"&gt;Sensex climbs&lt;/a&gt;</description>
<source url="https://www.reuters.com">Reuters</source>
</item>
<item>
<title><![CDATA[Infosys Q2 results: profit up 5%% & revenue <beats> estimates]]></title>
<link>https://news.google.com/articles/cdata</link>
<description>&lt;a href="https://example.com/infy"&gt;Infosys Q2&lt;/a&gt;&amp;nbsp;&amp;nbsp;&lt;font color="#6f6f6f"&gt;Mint&lt;/font&gt;</description>
</item>
<item>
<title>M&amp;M shares rally &#8211; Nifty Auto up</title>
<link>https://news.google.com/articles/amp</link>
<source url="https://www.livemint.com">Moneycontrol &amp; Co</source>
</item>
<item>
<title>Nifty Bank slips</title>
<link>https://news.google.com/articles/def</link>
<pubDate>Mon, 19 Oct 2026 08:00:00 GMT</pubDate>
</item>
%s
</channel>
</rss>`

func serveFeed(t *testing.T, extraItems int, status int) (*httptest.Server, *string) {
	t.Helper()
	var extra strings.Builder
	for i := 0; i < extraItems; i++ {
		fmt.Fprintf(&extra, "<item><title>Extra %d</title><link>https://x/%d</link></item>\n", i, i)
	}
	var lastQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastQuery = r.URL.Query().Get("q")
		w.WriteHeader(status)
		fmt.Fprintf(w, feed, extra.String())
	}))
	t.Cleanup(srv.Close)
	return srv, &lastQuery
}

func TestGoogleNews_ParsesItems(t *testing.T) {
	srv, lastQuery := serveFeed(t, 0, http.StatusOK)
	client := news.NewGoogleNews(srv.URL+"/rss/search", 10, time.Second)

	articles, err := client.Fetch(context.Background(), "Stock Market")
	require.NoError(t, err)
	require.Len(t, articles, 4)

	assert.Equal(t, "Stock Market", *lastQuery)
	assert.Equal(t, news.Article{
		Title:   "Sensex climbs 500 points - Reuters",
		Link:    "https://news.google.com/articles/abc",
		PubDate: "Mon, 19 Oct 2026 09:15:00 GMT",
		Source:  "Reuters",
	}, articles[0])

	assert.Equal(t, "Nifty Bank slips", articles[3].Title)
	assert.Equal(t, "https://news.google.com/articles/def", articles[3].Link)
	assert.Equal(t, "Unknown", articles[3].Source)
}

func TestGoogleNews_DecodesCDATAAndEntities(t *testing.T) {
	srv, _ := serveFeed(t, 0, http.StatusOK)
	client := news.NewGoogleNews(srv.URL, 10, time.Second)

	articles, err := client.Fetch(context.Background(), "INFY.NS stock news")
	require.NoError(t, err)
	require.Len(t, articles, 4)

	assert.Equal(t, "Infosys Q2 results: profit up 5% & revenue <beats> estimates", articles[1].Title)
	assert.Equal(t, "Mint", articles[1].Source, "publisher falls back to the description markup")

	assert.Equal(t, "M&M shares rally \u2013 Nifty Auto up", articles[2].Title)
	assert.Equal(t, "Moneycontrol & Co", articles[2].Source)
}

func TestGoogleNews_MalformedFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>not a feed")
	}))
	t.Cleanup(srv.Close)

	_, err := news.NewGoogleNews(srv.URL, 10, time.Second).Fetch(context.Background(), "x")
	assert.Error(t, err)
}

func TestGoogleNews_LimitsItems(t *testing.T) {
	srv, _ := serveFeed(t, 20, http.StatusOK)
	client := news.NewGoogleNews(srv.URL, 10, time.Second)

	articles, err := client.Fetch(context.Background(), "TCS.NS stock news")
	require.NoError(t, err)
	assert.Len(t, articles, 10)
	assert.Equal(t, "Extra 5", articles[9].Title)
}

func TestGoogleNews_BadStatus(t *testing.T) {
	srv, _ := serveFeed(t, 0, http.StatusServiceUnavailable)
	client := news.NewGoogleNews(srv.URL, 10, time.Second)

	_, err := client.Fetch(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
