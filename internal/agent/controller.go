// Package agent receives decoded commands from the bus, executes the
// matching browser-automation primitive, and emits one correlated result (or
// an explicit error result) per command.
package agent

import (
	"context"

	"github.com/xkilldash9x/tabwire/internal/protocol"
)

// TabContent is one bounded window of a tab's text plus, on the first
// window only, the document's link list.
type TabContent struct {
	Text        string
	IsTruncated bool
	Offset      int
	TotalLength int
	Links       []protocol.Link
}

// Controller is the set of browser primitives the dispatcher drives. The
// chromedp-backed Browser implements it in production; tests substitute a
// mock so dispatch policy can be exercised without a browser process.
type Controller interface {
	// OpenTab navigates a fresh tab to url and returns its id. Scheme
	// validation happens in the dispatcher, before this is reached.
	OpenTab(ctx context.Context, url string) (int, error)

	// CloseTab closes a single tab. The dispatcher loops it best-effort
	// over a close-tabs batch.
	CloseTab(ctx context.Context, tabID int) error

	// ListTabs reports every open tab in display order.
	ListTabs(ctx context.Context) ([]protocol.TabInfo, error)

	// RecentHistory returns recorded navigations, most recent first,
	// filtered by an optional substring query.
	RecentHistory(ctx context.Context, query string) ([]protocol.HistoryItem, error)

	// TabContent reads the tab's current DOM (never a cached snapshot) and
	// windows it at offset. Links are populated only when offset == 0.
	TabContent(ctx context.Context, tabID, offset int) (TabContent, error)

	// MoveTab places a tab at a target index. The dispatcher applies a
	// reorder-tabs batch as sequential moves in the order given.
	MoveTab(ctx context.Context, tabID, index int) error

	// FindHighlight counts matches of phrase in the tab. With zero matches
	// the tab is left untouched; otherwise the tab is activated before
	// highlighting so the user sees the jump.
	FindHighlight(ctx context.Context, tabID int, phrase string) (int, error)

	// GroupTabs assigns the tabs to a new group and returns its id.
	GroupTabs(ctx context.Context, tabIDs []int, collapsed bool, color, title string) (string, error)
}
