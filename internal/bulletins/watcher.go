package bulletins

import (
	"context"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/pkg/logger"
)

// noticeKeywords mark a bulletin item as acquisition-relevant. Matched
// case-insensitively against title and description.
var noticeKeywords = []string{
	"adjudicat", // adjudicated, adjudication
	"tax sale",
	"tax-sale",
	"tax title",
	"tax delinquen",
	"sheriff sale",
	"sheriff's sale",
	"seized property",
}

// maxNoticesPerPoll caps announcements from a single poll so a feed that
// dumps its archive cannot flood the channel.
const maxNoticesPerPoll = 5

// Notice is one actionable bulletin item.
type Notice struct {
	Market    string     `json:"market"`
	Feed      string     `json:"feed"`
	GUID      string     `json:"guid"`
	Title     string     `json:"title"`
	Link      string     `json:"link,omitempty"`
	Published *time.Time `json:"published,omitempty"`
}

// Summary reports one poll pass over all configured feeds.
type Summary struct {
	Feeds   int `json:"feeds"`
	Skipped int `json:"skipped"`
	Items   int `json:"items"`
	Notices int `json:"notices"`
	Errors  int `json:"errors"`
}

// Watcher polls the configured feeds and turns matching items into
// notices.
type Watcher struct {
	cfg      config.BulletinsConfig
	parser   *gofeed.Parser
	st       Stores
	notifier Notifier
	now      func() time.Time
}

// NewWatcher builds a watcher. notifier may be nil.
func NewWatcher(cfg config.BulletinsConfig, st Stores, notifier Notifier) *Watcher {
	return &Watcher{
		cfg:      cfg,
		parser:   gofeed.NewParser(),
		st:       st,
		notifier: notifier,
		now:      time.Now,
	}
}

// interval is the configured poll cadence.
func (w *Watcher) interval() time.Duration {
	if w.cfg.IntervalMinutes > 0 {
		return time.Duration(w.cfg.IntervalMinutes) * time.Minute
	}
	return time.Hour
}

// Run polls on the configured interval until the context ends. The first
// poll happens immediately.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()

	w.PollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.PollAll(ctx)
		}
	}
}

// PollAll polls every configured feed once, honoring per-feed backoff.
func (w *Watcher) PollAll(ctx context.Context) Summary {
	var sum Summary
	for _, feed := range w.cfg.Feeds {
		if ctx.Err() != nil {
			return sum
		}
		sum.Feeds++

		state, err := w.st.Feeds.Get(ctx, feed.URL)
		if err != nil {
			sum.Errors++
			logger.Warn("bulletin cursor load failed", "feed", feed.URL, "error", err)
			continue
		}
		if w.inBackoff(state) {
			sum.Skipped++
			continue
		}

		items, notices, err := w.pollFeed(ctx, feed, state)
		sum.Items += items
		sum.Notices += notices
		if err != nil {
			sum.Errors++
		}
	}

	if sum.Feeds > 0 {
		logger.Info("bulletin poll complete",
			"feeds", sum.Feeds,
			"skipped", sum.Skipped,
			"items", sum.Items,
			"notices", sum.Notices,
			"errors", sum.Errors,
		)
	}
	return sum
}

// inBackoff reports whether a failing feed is still inside its backoff
// window: interval doubled per consecutive error, capped at a day.
func (w *Watcher) inBackoff(state *domain.FeedState) bool {
	if state.ErrorCount == 0 || state.LastPolledAt == nil {
		return false
	}
	wait := w.interval()
	for i := 0; i < state.ErrorCount && wait < 24*time.Hour; i++ {
		wait *= 2
	}
	if wait > 24*time.Hour {
		wait = 24 * time.Hour
	}
	return w.now().Before(state.LastPolledAt.Add(wait))
}

func (w *Watcher) pollFeed(ctx context.Context, feed config.BulletinFeed, state *domain.FeedState) (items, notices int, err error) {
	parsed, err := w.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		count, recErr := w.st.Feeds.RecordError(ctx, feed.URL, feed.MarketCode)
		if recErr != nil {
			logger.Warn("bulletin error record failed", "feed", feed.URL, "error", recErr)
		}
		logger.Warn("bulletin poll failed", "feed", feed.URL, "consecutive", count, "error", err)
		return 0, 0, err
	}
	if len(parsed.Items) == 0 {
		return 0, 0, nil
	}

	fresh := newItems(parsed.Items, state.LastGUID)
	items = len(fresh)

	// A feed seen for the first time only sets the baseline; announcing
	// a county's full archive would bury the channel.
	if state.LastGUID != nil {
		for _, item := range fresh {
			if notices >= maxNoticesPerPoll {
				break
			}
			if !actionable(item) {
				continue
			}
			w.announce(ctx, feed, item)
			notices++
		}
	}

	newest := itemGUID(parsed.Items[0])
	if err := w.st.Feeds.SetCursor(ctx, feed.URL, feed.MarketCode, newest); err != nil {
		logger.Warn("bulletin cursor save failed", "feed", feed.URL, "error", err)
	}
	return items, notices, nil
}

// newItems returns the items newer than the cursor. Feeds list newest
// first, so everything before the cursor GUID is new.
func newItems(items []*gofeed.Item, lastGUID *string) []*gofeed.Item {
	if lastGUID == nil {
		return items
	}
	for i, item := range items {
		if itemGUID(item) == *lastGUID {
			return items[:i]
		}
	}
	return items
}

func itemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

// actionable reports whether an item's title or description mentions an
// acquisition-relevant notice.
func actionable(item *gofeed.Item) bool {
	text := strings.ToLower(item.Title + " " + stripHTML(item.Description))
	for _, kw := range noticeKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func (w *Watcher) announce(ctx context.Context, feed config.BulletinFeed, item *gofeed.Item) {
	n := Notice{
		Market:    feed.MarketCode,
		Feed:      feed.URL,
		GUID:      itemGUID(item),
		Title:     strings.TrimSpace(item.Title),
		Link:      item.Link,
		Published: item.PublishedParsed,
	}

	if _, err := w.st.Tasks.Create(ctx, domain.TaskBulletinNotice, n); err != nil {
		logger.Warn("bulletin task create failed", "feed", feed.URL, "guid", n.GUID, "error", err)
	}
	if w.notifier != nil {
		if err := w.notifier.Notify(ctx, n); err != nil {
			logger.Warn("bulletin notify failed", "feed", feed.URL, "guid", n.GUID, "error", err)
		}
	}
	logger.Info("bulletin notice", "market", n.Market, "title", n.Title, "link", n.Link)
}

var htmlTags = regexp.MustCompile(`<[^>]*>`)

// stripHTML flattens the HTML county sites put in descriptions down to
// matchable text.
func stripHTML(input string) string {
	text := htmlTags.ReplaceAllString(input, "")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}
