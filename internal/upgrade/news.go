package upgrade

import (
	"context"
	"sort"
	"time"
)

// NewsItem is one distro news entry (spec.md SUPPLEMENTED FEATURES "news",
// recovered from original_source/src/news.rs).
type NewsItem struct {
	Title       string
	PublishedAt time.Time
}

// NewsSource is the narrow external collaborator a news feed is fetched
// through — a read-only check, not a rendering engine: rendering the
// title/body stays with the caller (cmd/cairn), matching the i18n/color
// output the original left in its own printing code.
type NewsSource interface {
	FetchNews(ctx context.Context) ([]NewsItem, error)
}

// UnreadNews fetches the full feed and returns only items published after
// since, oldest first, along with the newest item's timestamp so the
// caller can persist it as the new mark-read watermark. A feed with no
// items newer than since returns a nil slice and since unchanged.
func UnreadNews(ctx context.Context, src NewsSource, since time.Time) ([]NewsItem, time.Time, error) {
	items, err := src.FetchNews(ctx)
	if err != nil {
		return nil, since, err
	}

	var unread []NewsItem
	newMark := since
	for _, item := range items {
		if item.PublishedAt.After(newMark) {
			newMark = item.PublishedAt
		}
		if item.PublishedAt.After(since) {
			unread = append(unread, item)
		}
	}
	sort.Slice(unread, func(i, j int) bool { return unread[i].PublishedAt.Before(unread[j].PublishedAt) })

	return unread, newMark, nil
}
