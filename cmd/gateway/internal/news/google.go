// Package news reads headlines from the Google News RSS search feed.
package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed/rss"
)

type Article struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	PubDate string `json:"pubDate"`
	Source  string `json:"source"`
}

type GoogleNews struct {
	httpClient *http.Client
	feedURL    string
	maxItems   int
}

func NewGoogleNews(feedURL string, maxItems int, timeout time.Duration) *GoogleNews {
	if maxItems < 1 {
		maxItems = 10
	}
	return &GoogleNews{
		httpClient: &http.Client{Timeout: timeout},
		feedURL:    feedURL,
		maxItems:   maxItems,
	}
}

// Fetch returns at most maxItems articles matching query, in feed order.
func (g *GoogleNews) Fetch(ctx context.Context, query string) ([]Article, error) {
	u, err := url.Parse(g.feedURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("hl", "en-US")
	q.Set("gl", "US")
	q.Set("ceid", "US:en")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var parser rss.Parser
	feed, err := parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	articles := make([]Article, 0, min(len(feed.Items), g.maxItems))
	for _, item := range feed.Items {
		if len(articles) >= g.maxItems {
			break
		}
		articles = append(articles, toArticle(item))
	}
	return articles, nil
}

func toArticle(item *rss.Item) Article {
	a := Article{
		Title:   strings.TrimSpace(item.Title),
		Link:    strings.TrimSpace(item.Link),
		PubDate: strings.TrimSpace(item.PubDate),
	}
	if item.Source != nil {
		a.Source = strings.TrimSpace(item.Source.Title)
	}
	if a.Source == "" {
		a.Source = sourceFromDescription(item.Description)
	}

	if a.Title == "" {
		a.Title = "No Title"
	}
	if a.Link == "" {
		a.Link = "#"
	}
	if a.Source == "" {
		a.Source = "Unknown"
	}
	return a
}

// sourceFromDescription reads the publisher Google News puts in the item's HTML description,
// e.g. `<a href="...">Headline</a>&nbsp;&nbsp;<font color="#6f6f6f">Reuters</font>`.
func sourceFromDescription(description string) string {
	if strings.TrimSpace(description) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("font").Last().Text())
}
