package agent

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabwire/internal/page"
	"github.com/xkilldash9x/tabwire/internal/protocol"
)

// DefaultContentWindow is the maximum characters of page text returned in
// one tab-content result.
const DefaultContentWindow = 50000

// AllocatorOptions builds the chromedp exec allocator options for the agent.
func AllocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
	)
	return opts
}

// tab is one live chromedp target plus the agent-side metadata (ordering,
// grouping) that headless Chrome has no native notion of.
type tab struct {
	id        int
	ctx       context.Context
	cancel    context.CancelFunc
	groupID   string
	lastURL   string
	lastTitle string
}

type tabGroup struct {
	id        string
	title     string
	color     string
	collapsed bool
}

// Browser implements Controller on a live Chrome process via chromedp. It
// owns the tab registry: ids, display order, and group metadata. All
// registry access is mutex-guarded; primitives execute concurrently.
type Browser struct {
	logger    *zap.Logger
	history   *HistoryStore
	maxWindow int

	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu      sync.Mutex
	nextID  int
	tabs    map[int]*tab
	order   []int
	groups  map[string]tabGroup
}

var _ Controller = (*Browser)(nil)

// NewBrowser starts a browser under the given allocator context and returns
// the controller. maxWindow <= 0 selects DefaultContentWindow.
func NewBrowser(allocCtx context.Context, history *HistoryStore, maxWindow int, logger *zap.Logger) (*Browser, error) {
	if maxWindow <= 0 {
		maxWindow = DefaultContentWindow
	}
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	// An empty Run starts the browser process eagerly so a broken
	// environment fails at startup, not on the first command.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("agent: start browser: %w", err)
	}

	return &Browser{
		logger:        logger.Named("browser"),
		history:       history,
		maxWindow:     maxWindow,
		browserCtx:    browserCtx,
		browserCancel: cancel,
		nextID:        1,
		tabs:          make(map[int]*tab),
		groups:        make(map[string]tabGroup),
	}, nil
}

// Shutdown closes every tab and the browser process.
func (b *Browser) Shutdown() {
	b.mu.Lock()
	for _, tb := range b.tabs {
		tb.cancel()
	}
	b.tabs = make(map[int]*tab)
	b.order = nil
	b.mu.Unlock()
	b.browserCancel()
}

// OpenTab creates a fresh tab, navigates it, and appends it to the display
// order. The navigation is recorded in the history store.
func (b *Browser) OpenTab(ctx context.Context, url string) (int, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)

	runCtx, runCancel := deadlineFrom(ctx, tabCtx)
	defer runCancel()

	var title string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Title(&title),
	)
	if err != nil {
		cancel()
		return 0, fmt.Errorf("agent: open tab %q: %w", url, err)
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.tabs[id] = &tab{id: id, ctx: tabCtx, cancel: cancel, lastURL: url, lastTitle: title}
	b.order = append(b.order, id)
	b.mu.Unlock()

	b.history.Record(ctx, url, title)
	b.logger.Info("Opened tab", zap.Int("tab_id", id), zap.String("url", url))
	return id, nil
}

// CloseTab closes one tab and removes it from the registry.
func (b *Browser) CloseTab(_ context.Context, tabID int) error {
	b.mu.Lock()
	tb, ok := b.tabs[tabID]
	if ok {
		delete(b.tabs, tabID)
		for i, id := range b.order {
			if id == tabID {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("agent: close tab: tab %d not found", tabID)
	}
	tb.cancel()
	b.logger.Info("Closed tab", zap.Int("tab_id", tabID))
	return nil
}

// ListTabs reports every tab in display order, refreshing URL and title from
// the live target where possible.
func (b *Browser) ListTabs(ctx context.Context) ([]protocol.TabInfo, error) {
	b.mu.Lock()
	ordered := make([]*tab, 0, len(b.order))
	for _, id := range b.order {
		ordered = append(ordered, b.tabs[id])
	}
	b.mu.Unlock()

	infos := make([]protocol.TabInfo, 0, len(ordered))
	for index, tb := range ordered {
		url, title := b.refresh(ctx, tb)
		infos = append(infos, protocol.TabInfo{
			ID:      tb.id,
			URL:     url,
			Title:   title,
			Index:   index,
			GroupID: tb.groupID,
		})
	}
	return infos, nil
}

// RecentHistory serves the recorded navigation history.
func (b *Browser) RecentHistory(ctx context.Context, query string) ([]protocol.HistoryItem, error) {
	return b.history.Search(ctx, query)
}

// TabContent captures the tab's current DOM, extracts visible text and
// links, and windows the text at offset. Links ride along only on the first
// window so continuation pages of the same document stay small.
func (b *Browser) TabContent(ctx context.Context, tabID, offset int) (TabContent, error) {
	tb, err := b.lookup(tabID)
	if err != nil {
		return TabContent{}, err
	}

	runCtx, cancel := deadlineFrom(ctx, tb.ctx)
	defer cancel()

	var rawHTML string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &rawHTML, chromedp.ByQuery)); err != nil {
		return TabContent{}, fmt.Errorf("agent: capture tab %d content: %w", tabID, err)
	}

	text, links, err := page.Extract(rawHTML)
	if err != nil {
		return TabContent{}, fmt.Errorf("agent: extract tab %d content: %w", tabID, err)
	}

	window := page.Slice(text, offset, b.maxWindow)
	content := TabContent{
		Text:        window.Text,
		IsTruncated: window.IsTruncated,
		Offset:      window.Offset,
		TotalLength: window.TotalLength,
	}
	if window.Offset == 0 {
		content.Links = links
	}
	return content, nil
}

// MoveTab repositions a tab within the display order. index is clamped to
// the valid range.
func (b *Browser) MoveTab(_ context.Context, tabID, index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.tabs[tabID]; !ok {
		return fmt.Errorf("agent: move tab: tab %d not found", tabID)
	}

	pos := -1
	for i, id := range b.order {
		if id == tabID {
			pos = i
			break
		}
	}
	if pos == -1 {
		return fmt.Errorf("agent: move tab: tab %d missing from order", tabID)
	}

	b.order = append(b.order[:pos], b.order[pos+1:]...)
	if index < 0 {
		index = 0
	}
	if index > len(b.order) {
		index = len(b.order)
	}
	b.order = append(b.order[:index], append([]int{tabID}, b.order[index:]...)...)
	return nil
}

// countMatchesJS counts case-insensitive occurrences of a phrase in the
// page's visible text without touching the DOM.
const countMatchesJS = `(function(phrase){
	if (!phrase) { return 0; }
	var text = document.body ? document.body.innerText : "";
	if (!text) { return 0; }
	var needle = phrase.toLowerCase();
	var hay = text.toLowerCase();
	var count = 0, idx = 0;
	while ((idx = hay.indexOf(needle, idx)) !== -1) { count++; idx += needle.length; }
	return count;
})(%s)`

// highlightJS wraps every match in a <mark> element and scrolls the first
// one into view. Runs only after the tab has been activated.
const highlightJS = `(function(phrase){
	var needle = phrase.toLowerCase();
	var escaped = phrase.replace(/[.*+?^${}()|[\]\\]/g, '\\$&');
	var walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT, null);
	var nodes = [];
	while (walker.nextNode()) {
		var n = walker.currentNode;
		var parent = n.parentElement;
		if (parent && (parent.tagName === 'SCRIPT' || parent.tagName === 'STYLE' || parent.tagName === 'MARK')) { continue; }
		if (n.nodeValue.toLowerCase().indexOf(needle) !== -1) { nodes.push(n); }
	}
	var count = 0;
	nodes.forEach(function(node){
		var parts = node.nodeValue.split(new RegExp('(' + escaped + ')', 'ig'));
		if (parts.length < 2) { return; }
		var frag = document.createDocumentFragment();
		parts.forEach(function(part){
			if (part.toLowerCase() === needle) {
				var mark = document.createElement('mark');
				mark.textContent = part;
				frag.appendChild(mark);
				count++;
			} else if (part) {
				frag.appendChild(document.createTextNode(part));
			}
		});
		node.parentNode.replaceChild(frag, node);
	});
	var first = document.querySelector('mark');
	if (first) { first.scrollIntoView({block: 'center'}); }
	return count;
})(%s)`

// FindHighlight counts matches first; with zero the tab is left completely
// untouched. With matches, the tab is brought to the front before
// highlighting so the user sees the jump.
func (b *Browser) FindHighlight(ctx context.Context, tabID int, phrase string) (int, error) {
	tb, err := b.lookup(tabID)
	if err != nil {
		return 0, err
	}

	runCtx, cancel := deadlineFrom(ctx, tb.ctx)
	defer cancel()

	quoted := strconv.Quote(phrase)

	var count int
	if err := chromedp.Run(runCtx, chromedp.Evaluate(fmt.Sprintf(countMatchesJS, quoted), &count)); err != nil {
		return 0, fmt.Errorf("agent: count matches in tab %d: %w", tabID, err)
	}
	if count == 0 {
		return 0, nil
	}

	var highlighted int
	err = chromedp.Run(runCtx,
		cdppage.BringToFront(),
		chromedp.Evaluate(fmt.Sprintf(highlightJS, quoted), &highlighted),
	)
	if err != nil {
		return 0, fmt.Errorf("agent: highlight in tab %d: %w", tabID, err)
	}
	return highlighted, nil
}

// GroupTabs assigns the given tabs to a new group and returns its id.
// Unknown ids are skipped with a log line; an entirely unknown batch is an
// error.
func (b *Browser) GroupTabs(_ context.Context, tabIDs []int, collapsed bool, color, title string) (string, error) {
	groupID := uuid.New().String()

	b.mu.Lock()
	grouped := 0
	for _, id := range tabIDs {
		tb, ok := b.tabs[id]
		if !ok {
			b.logger.Warn("Skipping unknown tab in group-tabs", zap.Int("tab_id", id))
			continue
		}
		tb.groupID = groupID
		grouped++
	}
	if grouped > 0 {
		b.groups[groupID] = tabGroup{id: groupID, title: title, color: color, collapsed: collapsed}
		// Keep grouped tabs adjacent, preserving their relative order.
		b.regroupLocked(groupID)
	}
	b.mu.Unlock()

	if grouped == 0 {
		return "", fmt.Errorf("agent: group tabs: none of %v found", tabIDs)
	}
	b.logger.Info("Grouped tabs", zap.String("group_id", groupID), zap.Int("count", grouped))
	return groupID, nil
}

// regroupLocked moves the members of groupID next to each other in the
// display order, anchored where the first member sat. Relative order is
// preserved on both sides. Caller holds b.mu.
func (b *Browser) regroupLocked(groupID string) {
	var members, rest []int
	insertAt := -1
	for _, id := range b.order {
		if tb, ok := b.tabs[id]; ok && tb.groupID == groupID {
			if insertAt == -1 {
				insertAt = len(rest)
			}
			members = append(members, id)
		} else {
			rest = append(rest, id)
		}
	}
	if insertAt == -1 {
		return
	}
	order := make([]int, 0, len(b.order))
	order = append(order, rest[:insertAt]...)
	order = append(order, members...)
	order = append(order, rest[insertAt:]...)
	b.order = order
}

// lookup fetches a tab by id.
func (b *Browser) lookup(tabID int) (*tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tb, ok := b.tabs[tabID]
	if !ok {
		return nil, fmt.Errorf("agent: tab %d not found", tabID)
	}
	return tb, nil
}

// refresh queries the live target for its URL and title, falling back to the
// last known values when the target is unresponsive.
func (b *Browser) refresh(ctx context.Context, tb *tab) (string, string) {
	runCtx, cancel := deadlineFrom(ctx, tb.ctx)
	defer cancel()

	var url, title string
	if err := chromedp.Run(runCtx, chromedp.Location(&url), chromedp.Title(&title)); err != nil {
		b.logger.Debug("Falling back to last known tab metadata", zap.Int("tab_id", tb.id), zap.Error(err))
		b.mu.Lock()
		url, title = tb.lastURL, tb.lastTitle
		b.mu.Unlock()
		return url, title
	}

	b.mu.Lock()
	tb.lastURL, tb.lastTitle = url, title
	b.mu.Unlock()
	return url, title
}

// deadlineFrom derives a context on base that honors op's deadline, letting
// a dispatcher-level timeout bound chromedp work on a different context
// chain.
func deadlineFrom(op, base context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := op.Deadline(); ok {
		return context.WithDeadline(base, deadline)
	}
	return context.WithCancel(base)
}
