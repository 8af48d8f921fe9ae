// Package tools is the typed front-end surface: one method per browser
// primitive, each a thin translation between Go arguments and the tagged
// command/result vocabulary carried by the bus. The tool-dispatch layer
// (and the local HTTP bridge) call these methods and never touch frames,
// signatures, or correlation ids directly.
package tools

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/tabwire/internal/protocol"
)

// Caller issues one command and blocks for its correlated result. Satisfied
// by *gateway.Gateway.
type Caller interface {
	Call(ctx context.Context, cmd protocol.Command) (protocol.Result, error)
}

// Content is one pagination window of a tab's visible text. Links are
// populated only when Offset is 0.
type Content struct {
	Text        string          `json:"text"`
	IsTruncated bool            `json:"isTruncated"`
	Offset      int             `json:"offset"`
	TotalLength int             `json:"totalLength"`
	Links       []protocol.Link `json:"links,omitempty"`
}

// Browser exposes the remote browser agent as a plain Go API.
type Browser struct {
	caller Caller
}

// NewBrowser wraps a Caller.
func NewBrowser(caller Caller) *Browser {
	return &Browser{caller: caller}
}

// OpenTab navigates a new tab to url and returns its id. The agent refuses
// non-https URLs silently, which surfaces here as a timeout.
func (b *Browser) OpenTab(ctx context.Context, url string) (int, error) {
	res, err := b.caller.Call(ctx, protocol.Command{
		Cmd: protocol.CmdOpenTab,
		URL: url,
	})
	if err != nil {
		return 0, err
	}
	if res.Resource != protocol.ResourceOpenedTabID {
		return 0, unexpectedResource(protocol.CmdOpenTab, res.Resource)
	}
	return res.TabID, nil
}

// CloseTabs closes the given tabs best-effort. Unknown ids are skipped by
// the agent without failing the batch.
func (b *Browser) CloseTabs(ctx context.Context, tabIDs []int) error {
	res, err := b.caller.Call(ctx, protocol.Command{
		Cmd:    protocol.CmdCloseTabs,
		TabIDs: tabIDs,
	})
	if err != nil {
		return err
	}
	if res.Resource != protocol.ResourceTabsClosed {
		return unexpectedResource(protocol.CmdCloseTabs, res.Resource)
	}
	return nil
}

// ListTabs returns every open tab with its current URL, title, index, and
// group membership.
func (b *Browser) ListTabs(ctx context.Context) ([]protocol.TabInfo, error) {
	res, err := b.caller.Call(ctx, protocol.Command{Cmd: protocol.CmdGetTabList})
	if err != nil {
		return nil, err
	}
	if res.Resource != protocol.ResourceTabs {
		return nil, unexpectedResource(protocol.CmdGetTabList, res.Resource)
	}
	return res.Tabs, nil
}

// RecentHistory returns recent navigation entries matching query, newest
// first. An empty query returns the most recent entries unfiltered.
func (b *Browser) RecentHistory(ctx context.Context, query string) ([]protocol.HistoryItem, error) {
	res, err := b.caller.Call(ctx, protocol.Command{
		Cmd:         protocol.CmdGetRecentHistory,
		SearchQuery: query,
	})
	if err != nil {
		return nil, err
	}
	if res.Resource != protocol.ResourceHistory {
		return nil, unexpectedResource(protocol.CmdGetRecentHistory, res.Resource)
	}
	return res.History, nil
}

// TabContent fetches one window of a tab's visible text starting at the
// character offset. Callers page forward by passing offset + len(Text) of
// the previous window until IsTruncated is false.
func (b *Browser) TabContent(ctx context.Context, tabID, offset int) (Content, error) {
	res, err := b.caller.Call(ctx, protocol.Command{
		Cmd:    protocol.CmdGetTabContent,
		TabID:  tabID,
		Offset: offset,
	})
	if err != nil {
		return Content{}, err
	}
	if res.Resource != protocol.ResourceTabContent {
		return Content{}, unexpectedResource(protocol.CmdGetTabContent, res.Resource)
	}
	return Content{
		Text:        res.FullText,
		IsTruncated: res.IsTruncated,
		Offset:      res.Offset,
		TotalLength: res.TotalLength,
		Links:       res.Links,
	}, nil
}

// ReorderTabs moves tabs into the requested left-to-right order. The agent
// applies moves best-effort and the echo is the requested order, so a
// caller that needs the achieved order should follow up with ListTabs.
func (b *Browser) ReorderTabs(ctx context.Context, tabOrder []int) ([]int, error) {
	res, err := b.caller.Call(ctx, protocol.Command{
		Cmd:      protocol.CmdReorderTabs,
		TabOrder: tabOrder,
	})
	if err != nil {
		return nil, err
	}
	if res.Resource != protocol.ResourceTabsReordered {
		return nil, unexpectedResource(protocol.CmdReorderTabs, res.Resource)
	}
	return res.TabOrder, nil
}

// FindHighlight highlights every match of phrase in the tab and returns the
// match count. Zero matches is a successful result, not an error.
func (b *Browser) FindHighlight(ctx context.Context, tabID int, phrase string) (int, error) {
	res, err := b.caller.Call(ctx, protocol.Command{
		Cmd:         protocol.CmdFindHighlight,
		TabID:       tabID,
		QueryPhrase: phrase,
	})
	if err != nil {
		return 0, err
	}
	if res.Resource != protocol.ResourceFindHighlightResult {
		return 0, unexpectedResource(protocol.CmdFindHighlight, res.Resource)
	}
	return res.NoOfResults, nil
}

// GroupTabs collects the given tabs into a new group and returns its id.
func (b *Browser) GroupTabs(ctx context.Context, tabIDs []int, collapsed bool, color, title string) (string, error) {
	res, err := b.caller.Call(ctx, protocol.Command{
		Cmd:         protocol.CmdGroupTabs,
		GroupTabIDs: tabIDs,
		IsCollapsed: collapsed,
		GroupColor:  color,
		GroupTitle:  title,
	})
	if err != nil {
		return "", err
	}
	if res.Resource != protocol.ResourceTabGroup {
		return "", unexpectedResource(protocol.CmdGroupTabs, res.Resource)
	}
	return res.GroupID, nil
}

func unexpectedResource(cmd, resource string) error {
	return fmt.Errorf("tools: %q returned unexpected resource %q", cmd, resource)
}
