package news

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sawpanic/equityrun/internal/sentiment"
	"github.com/sawpanic/equityrun/internal/symbol"
)

// SourceStatus records one adapter's last fetch outcome, surfaced via
// Aggregator.Fetch's per-source status map (spec §4.E).
type SourceStatus struct {
	OK      bool
	Err     error
	FetchedAt time.Time
}

// Aggregator fans out across configured Source adapters, merges by
// Article.ID, resolves symbols, tags catalysts, and scores sentiment.
type Aggregator struct {
	sources  []Source
	universe map[string]struct{} // known tickers + watchlist, for symbol resolution
	analyzer *sentiment.Analyzer
}

func NewAggregator(sources []Source, universe []string, analyzer *sentiment.Analyzer) *Aggregator {
	u := make(map[string]struct{}, len(universe))
	for _, s := range universe {
		if norm, err := symbol.Normalize(s); err == nil {
			u[norm] = struct{}{}
		}
	}
	return &Aggregator{sources: sources, universe: u, analyzer: analyzer}
}

// Fetch runs every source concurrently, merges results by id (latest
// FetchedAt wins on field conflicts, per spec §5 ordering guarantees),
// and returns the union alongside a per-source status map. A source
// failure never aborts the others.
func (a *Aggregator) Fetch(ctx context.Context) ([]Article, map[string]SourceStatus) {
	type result struct {
		name    string
		raws    []RawArticle
		err     error
		fetched time.Time
	}

	results := make(chan result, len(a.sources))
	var wg sync.WaitGroup
	for _, src := range a.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			raws, err := src.Fetch(ctx)
			results <- result{name: src.Name(), raws: raws, err: err, fetched: time.Now().UTC()}
		}(src)
	}
	go func() { wg.Wait(); close(results) }()

	status := make(map[string]SourceStatus, len(a.sources))
	merged := make(map[string]Article)
	for r := range results {
		status[r.name] = SourceStatus{OK: r.err == nil, Err: r.err, FetchedAt: r.fetched}
		if r.err != nil {
			continue
		}
		for _, raw := range r.raws {
			article := a.buildArticle(raw, r.name, r.fetched)
			a.mergeInto(merged, article)
		}
	}

	out := make([]Article, 0, len(merged))
	for _, article := range merged {
		out = append(out, article)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	return out, status
}

func (a *Aggregator) buildArticle(raw RawArticle, source string, fetchedAt time.Time) Article {
	id := ComputeID(raw.URL, source, raw.Title, raw.PublishedAt)
	tags, priority := tagCatalysts(raw.Title, raw.Body)
	score := a.analyzer.Score(raw.Title+"\n"+raw.Body, nil)

	article := Article{
		ID: id, Title: raw.Title, Body: raw.Body, Source: source, URL: raw.URL,
		PublishedAt: raw.PublishedAt, FetchedAt: fetchedAt,
		Sentiment: &score, CatalystTags: tags, Priority: priority,
	}
	article.Symbol = a.resolveSymbol(raw.Title, raw.Body)
	return article
}

// resolveSymbol implements spec §4.E's three-step rule: exact uppercase
// ticker token that is also a member of the universe; preference for
// cashtagged mentions; first match wins.
func (a *Aggregator) resolveSymbol(title, body string) string {
	text := title + "\n" + body
	rawMatches := symbol.ExtractCandidatesRaw(text)

	var firstPlain, firstCashtag string
	for _, raw := range rawMatches {
		ticker := strings.TrimPrefix(raw, "$")
		if _, known := a.universe[ticker]; !known {
			continue
		}
		if symbol.IsCashtag(raw) {
			if firstCashtag == "" {
				firstCashtag = ticker
			}
		} else if firstPlain == "" {
			firstPlain = ticker
		}
	}
	if firstCashtag != "" {
		return firstCashtag
	}
	return firstPlain
}

// mergeInto implements the id-keyed merge: latest FetchedAt wins on
// conflicting fields, source provenance accumulates (spec §5).
func (a *Aggregator) mergeInto(merged map[string]Article, next Article) {
	existing, ok := merged[next.ID]
	if !ok {
		merged[next.ID] = next
		return
	}
	if next.FetchedAt.After(existing.FetchedAt) {
		merged[next.ID] = next
	} else {
		merged[next.ID] = existing
	}
	// Source provenance is tracked as a '+'-joined accumulation so a
	// reader can see every adapter that independently surfaced this id.
	if !strings.Contains(existing.Source, next.Source) {
		combined := merged[next.ID]
		combined.Source = existing.Source + "+" + next.Source
		merged[next.ID] = combined
	}
}
