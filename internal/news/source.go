package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/relvacode/iso8601"

	"github.com/sawpanic/equityrun/internal/circuit"
	"github.com/sawpanic/equityrun/internal/errkind"
	"github.com/sawpanic/equityrun/internal/ratelimit"
)

// RawArticle is a source adapter's output before merge/enrichment.
type RawArticle struct {
	Title       string
	Body        string
	URL         string
	PublishedAt time.Time
}

// Source fetches a batch of RawArticles from one feed. Implementations
// must not swallow errors silently — the aggregator isolates per-source
// failures (spec §4.E).
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]RawArticle, error)
}

// rssFeed is the minimal RSS 2.0 shape the aggregator understands,
// parsed with the standard library's encoding/xml (no ecosystem RSS
// parser appears anywhere in the corpus, so this is the one ambient
// concern left on stdlib — see DESIGN.md).
type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
}

// RSSSource fetches and parses a single RSS feed URL, rate-limited and
// circuit-broken like every other outbound adapter in this module.
type RSSSource struct {
	SourceName string
	FeedURL    string
	Client     *http.Client
	Limiter    *ratelimit.Limiter
	Breaker    *circuit.Manager
}

func NewRSSSource(name, feedURL string, limiter *ratelimit.Limiter, breaker *circuit.Manager) *RSSSource {
	return &RSSSource{SourceName: name, FeedURL: feedURL, Client: &http.Client{Timeout: 10 * time.Second}, Limiter: limiter, Breaker: breaker}
}

func (r *RSSSource) Name() string { return r.SourceName }

func (r *RSSSource) Fetch(ctx context.Context) ([]RawArticle, error) {
	op := "news.rss." + r.SourceName
	if err := r.Limiter.Acquire(ctx, r.SourceName); err != nil {
		return nil, err
	}

	var out []RawArticle
	err := r.Breaker.Call(ctx, r.SourceName, op, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.FeedURL, nil)
		if err != nil {
			return errkind.New(errkind.Internal, op, err)
		}
		resp, err := r.Client.Do(req)
		if err != nil {
			return errkind.New(errkind.Network, op, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errkind.New(errkind.Network, op, fmt.Errorf("http %d", resp.StatusCode))
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errkind.New(errkind.Network, op, err)
		}
		var feed rssFeed
		if err := xml.Unmarshal(body, &feed); err != nil {
			return errkind.New(errkind.Internal, op, err)
		}
		for _, item := range feed.Channel.Items {
			title := strings.TrimSpace(item.Title)
			if title == "" || item.Link == "" {
				continue // discard malformed entries per spec §4.E
			}
			published := parseFeedTime(item.PubDate)
			out = append(out, RawArticle{
				Title: title, Body: strings.TrimSpace(item.Description),
				URL: item.Link, PublishedAt: published,
			})
		}
		if len(out) == 0 {
			return errkind.New(errkind.Empty, op, fmt.Errorf("no usable items in %s", r.FeedURL))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseFeedTime(raw string) time.Time {
	if t, err := time.Parse(time.RFC1123Z, raw); err == nil {
		return t
	}
	if t, err := iso8601.ParseString(raw); err == nil {
		return t
	}
	return time.Now().UTC()
}

// HTMLSource scrapes a JS-rendered news page via a headless Chrome
// session, grounded in the teacher pack's chromedp-based doc scraper
// (NimbleMarkets-dbn-go cmd/dbn-go-slurp-docs): navigate, wait for the
// article container, then evaluate a JS extraction script for the
// headline/body text.
type HTMLSource struct {
	SourceName    string
	PageURL       string
	ItemSelector  string // CSS selector wrapping each article teaser
	Limiter       *ratelimit.Limiter
	Breaker       *circuit.Manager
	NavTimeout    time.Duration
}

func NewHTMLSource(name, pageURL, itemSelector string, limiter *ratelimit.Limiter, breaker *circuit.Manager) *HTMLSource {
	return &HTMLSource{SourceName: name, PageURL: pageURL, ItemSelector: itemSelector, Limiter: limiter, Breaker: breaker, NavTimeout: 30 * time.Second}
}

func (h *HTMLSource) Name() string { return h.SourceName }

type htmlItem struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

func (h *HTMLSource) Fetch(ctx context.Context) ([]RawArticle, error) {
	op := "news.html." + h.SourceName
	if err := h.Limiter.Acquire(ctx, h.SourceName); err != nil {
		return nil, err
	}

	var out []RawArticle
	err := h.Breaker.Call(ctx, h.SourceName, op, func(ctx context.Context) error {
		allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
		defer allocCancel()
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		defer browserCancel()
		navCtx, navCancel := context.WithTimeout(browserCtx, h.NavTimeout)
		defer navCancel()

		var items []htmlItem
		script := fmt.Sprintf(`Array.from(document.querySelectorAll(%q)).map(el => ({
			title: (el.querySelector('h1,h2,h3,.title') || el).innerText.trim(),
			body: (el.querySelector('p,.summary') || {innerText: ""}).innerText.trim(),
			url: (el.querySelector('a') || {href: ""}).href,
		}))`, h.ItemSelector)

		if err := chromedp.Run(navCtx,
			chromedp.Navigate(h.PageURL),
			chromedp.WaitReady("body"),
			chromedp.Evaluate(script, &items),
		); err != nil {
			return errkind.New(errkind.Network, op, err)
		}

		now := time.Now().UTC()
		for _, it := range items {
			if strings.TrimSpace(it.Title) == "" || it.URL == "" {
				continue
			}
			out = append(out, RawArticle{Title: it.Title, Body: it.Body, URL: it.URL, PublishedAt: now})
		}
		if len(out) == 0 {
			return errkind.New(errkind.Empty, op, fmt.Errorf("no articles scraped from %s", h.PageURL))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
