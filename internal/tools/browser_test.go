package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/tabwire/internal/protocol"
)

// fakeCaller records the last command and replies with a scripted result.
type fakeCaller struct {
	lastCmd protocol.Command
	result  protocol.Result
	err     error
}

func (f *fakeCaller) Call(_ context.Context, cmd protocol.Command) (protocol.Result, error) {
	f.lastCmd = cmd
	return f.result, f.err
}

func TestBrowser_OpenTab(t *testing.T) {
	fc := &fakeCaller{result: protocol.Result{Resource: protocol.ResourceOpenedTabID, TabID: 7}}
	b := NewBrowser(fc)

	tabID, err := b.OpenTab(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 7, tabID)
	assert.Equal(t, protocol.CmdOpenTab, fc.lastCmd.Cmd)
	assert.Equal(t, "https://example.com", fc.lastCmd.URL)
}

func TestBrowser_OpenTab_CallError(t *testing.T) {
	wantErr := errors.New("transport down")
	fc := &fakeCaller{err: wantErr}
	b := NewBrowser(fc)

	_, err := b.OpenTab(context.Background(), "https://example.com")
	require.ErrorIs(t, err, wantErr)
}

func TestBrowser_OpenTab_WrongResource(t *testing.T) {
	fc := &fakeCaller{result: protocol.Result{Resource: protocol.ResourceTabs}}
	b := NewBrowser(fc)

	_, err := b.OpenTab(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected resource")
}

func TestBrowser_CloseTabs(t *testing.T) {
	fc := &fakeCaller{result: protocol.Result{Resource: protocol.ResourceTabsClosed}}
	b := NewBrowser(fc)

	require.NoError(t, b.CloseTabs(context.Background(), []int{1, 2, 3}))
	assert.Equal(t, protocol.CmdCloseTabs, fc.lastCmd.Cmd)
	assert.Equal(t, []int{1, 2, 3}, fc.lastCmd.TabIDs)
}

func TestBrowser_ListTabs(t *testing.T) {
	want := []protocol.TabInfo{
		{ID: 1, URL: "https://a.example", Title: "A", Index: 0},
		{ID: 2, URL: "https://b.example", Title: "B", Index: 1},
	}
	fc := &fakeCaller{result: protocol.Result{Resource: protocol.ResourceTabs, Tabs: want}}
	b := NewBrowser(fc)

	tabs, err := b.ListTabs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, tabs)
	assert.Equal(t, protocol.CmdGetTabList, fc.lastCmd.Cmd)
}

func TestBrowser_RecentHistory(t *testing.T) {
	want := []protocol.HistoryItem{{URL: "https://news.example", Title: "News", LastVisitedMs: 1700000000000}}
	fc := &fakeCaller{result: protocol.Result{Resource: protocol.ResourceHistory, History: want}}
	b := NewBrowser(fc)

	items, err := b.RecentHistory(context.Background(), "news")
	require.NoError(t, err)
	assert.Equal(t, want, items)
	assert.Equal(t, "news", fc.lastCmd.SearchQuery)
}

func TestBrowser_TabContent(t *testing.T) {
	fc := &fakeCaller{result: protocol.Result{
		Resource:    protocol.ResourceTabContent,
		FullText:    "hello world",
		IsTruncated: true,
		Offset:      0,
		TotalLength: 90000,
		Links:       []protocol.Link{{URL: "https://example.com/a", Text: "a"}},
	}}
	b := NewBrowser(fc)

	content, err := b.TabContent(context.Background(), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello world", content.Text)
	assert.True(t, content.IsTruncated)
	assert.Equal(t, 90000, content.TotalLength)
	assert.Len(t, content.Links, 1)
	assert.Equal(t, 3, fc.lastCmd.TabID)
	assert.Equal(t, 0, fc.lastCmd.Offset)
}

func TestBrowser_ReorderTabs(t *testing.T) {
	fc := &fakeCaller{result: protocol.Result{Resource: protocol.ResourceTabsReordered, TabOrder: []int{3, 1, 2}}}
	b := NewBrowser(fc)

	order, err := b.ReorderTabs(context.Background(), []int{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2}, order)
	assert.Equal(t, []int{3, 1, 2}, fc.lastCmd.TabOrder)
}

func TestBrowser_FindHighlight(t *testing.T) {
	fc := &fakeCaller{result: protocol.Result{Resource: protocol.ResourceFindHighlightResult, NoOfResults: 4}}
	b := NewBrowser(fc)

	count, err := b.FindHighlight(context.Background(), 2, "golang")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, "golang", fc.lastCmd.QueryPhrase)
}

func TestBrowser_FindHighlight_ZeroMatchesIsNotAnError(t *testing.T) {
	fc := &fakeCaller{result: protocol.Result{Resource: protocol.ResourceFindHighlightResult, NoOfResults: 0}}
	b := NewBrowser(fc)

	count, err := b.FindHighlight(context.Background(), 2, "no-such-phrase")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBrowser_GroupTabs(t *testing.T) {
	fc := &fakeCaller{result: protocol.Result{Resource: protocol.ResourceTabGroup, GroupID: "g-123"}}
	b := NewBrowser(fc)

	groupID, err := b.GroupTabs(context.Background(), []int{1, 2}, true, "blue", "research")
	require.NoError(t, err)
	assert.Equal(t, "g-123", groupID)
	assert.Equal(t, []int{1, 2}, fc.lastCmd.GroupTabIDs)
	assert.True(t, fc.lastCmd.IsCollapsed)
	assert.Equal(t, "blue", fc.lastCmd.GroupColor)
	assert.Equal(t, "research", fc.lastCmd.GroupTitle)
}
