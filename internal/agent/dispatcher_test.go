package agent_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tabwire/internal/agent"
	"github.com/xkilldash9x/tabwire/internal/protocol"
)

// mockController records primitive invocations and plays back canned
// responses.
type mockController struct {
	mu sync.Mutex

	opened      []string
	closed      []int
	moved       [][2]int // tabID, index
	highlighted []string
	grouped     [][]int

	openErr      error
	closeErrFor  map[int]error
	moveErrFor   map[int]error
	contentErr   error
	highlightN   int
	content      agent.TabContent
	tabs         []protocol.TabInfo
	history      []protocol.HistoryItem
}

func (m *mockController) OpenTab(_ context.Context, url string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return 0, m.openErr
	}
	m.opened = append(m.opened, url)
	return 42, nil
}

func (m *mockController) CloseTab(_ context.Context, tabID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, tabID)
	if err, ok := m.closeErrFor[tabID]; ok {
		return err
	}
	return nil
}

func (m *mockController) ListTabs(context.Context) ([]protocol.TabInfo, error) {
	return m.tabs, nil
}

func (m *mockController) RecentHistory(_ context.Context, query string) ([]protocol.HistoryItem, error) {
	var out []protocol.HistoryItem
	for _, item := range m.history {
		if query == "" || strings.Contains(item.URL, query) || strings.Contains(item.Title, query) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockController) TabContent(_ context.Context, tabID, offset int) (agent.TabContent, error) {
	if m.contentErr != nil {
		return agent.TabContent{}, m.contentErr
	}
	content := m.content
	content.Offset = offset
	if offset != 0 {
		content.Links = nil
	}
	return content, nil
}

func (m *mockController) MoveTab(_ context.Context, tabID, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moved = append(m.moved, [2]int{tabID, index})
	if err, ok := m.moveErrFor[tabID]; ok {
		return err
	}
	return nil
}

func (m *mockController) FindHighlight(_ context.Context, tabID int, phrase string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highlighted = append(m.highlighted, phrase)
	return m.highlightN, nil
}

func (m *mockController) GroupTabs(_ context.Context, tabIDs []int, collapsed bool, color, title string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grouped = append(m.grouped, tabIDs)
	return "group-1", nil
}

// captureSender collects results emitted by the dispatcher.
type captureSender struct {
	mu      sync.Mutex
	results []protocol.Result
	notify  chan struct{}
}

func newCaptureSender() *captureSender {
	return &captureSender{notify: make(chan struct{}, 64)}
}

func (s *captureSender) Send(payload []byte) error {
	res, err := protocol.DecodeResult(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.results = append(s.results, res)
	s.mu.Unlock()
	s.notify <- struct{}{}
	return nil
}

func (s *captureSender) waitOne(t *testing.T) protocol.Result {
	t.Helper()
	select {
	case <-s.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher emitted no result")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[len(s.results)-1]
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func setup(t *testing.T, ctrl *mockController) (*agent.Dispatcher, *captureSender) {
	t.Helper()
	sender := newCaptureSender()
	d := agent.NewDispatcher(ctrl, sender, time.Second, zaptest.NewLogger(t))
	return d, sender
}

func handle(t *testing.T, d *agent.Dispatcher, cmd protocol.Command) {
	t.Helper()
	payload, err := protocol.EncodeCommand(cmd)
	require.NoError(t, err)
	d.HandleInbound(payload)
}

func TestDispatch_OpenTab(t *testing.T) {
	ctrl := &mockController{}
	d, sender := setup(t, ctrl)

	handle(t, d, protocol.Command{Cmd: protocol.CmdOpenTab, CorrelationID: "c1", URL: "https://example.com"})

	res := sender.waitOne(t)
	assert.Equal(t, protocol.ResourceOpenedTabID, res.Resource)
	assert.Equal(t, "c1", res.CorrelationID)
	assert.Equal(t, 42, res.TabID)
	assert.Equal(t, []string{"https://example.com"}, ctrl.opened)
}

func TestDispatch_OpenTab_RejectsUnsafeSchemes(t *testing.T) {
	for _, url := range []string{
		"http://example.com",
		"file:///etc/passwd",
		"javascript:alert(1)",
		"chrome://settings",
		"ftp://example.com",
		"https://", // no host
		"not a url",
		"",
	} {
		t.Run(url, func(t *testing.T) {
			ctrl := &mockController{}
			d, sender := setup(t, ctrl)

			handle(t, d, protocol.Command{Cmd: protocol.CmdOpenTab, CorrelationID: "c1", URL: url})

			// The request is dropped: no primitive call and no result at all.
			time.Sleep(50 * time.Millisecond)
			assert.Empty(t, ctrl.opened)
			assert.Zero(t, sender.count())
		})
	}
}

func TestDispatch_OpenTab_PrimitiveFailureProducesErrorResult(t *testing.T) {
	ctrl := &mockController{openErr: errors.New("browser exploded")}
	d, sender := setup(t, ctrl)

	handle(t, d, protocol.Command{Cmd: protocol.CmdOpenTab, CorrelationID: "c1", URL: "https://example.com"})

	res := sender.waitOne(t)
	assert.Equal(t, protocol.ResourceError, res.Resource)
	assert.Equal(t, "c1", res.CorrelationID)
	assert.Contains(t, res.ErrorMessage, "browser exploded")
}

func TestDispatch_CloseTabs_BestEffort(t *testing.T) {
	ctrl := &mockController{closeErrFor: map[int]error{2: errors.New("gone already")}}
	d, sender := setup(t, ctrl)

	handle(t, d, protocol.Command{Cmd: protocol.CmdCloseTabs, CorrelationID: "c1", TabIDs: []int{1, 2, 3}})

	res := sender.waitOne(t)
	assert.Equal(t, protocol.ResourceTabsClosed, res.Resource)
	// The failure on tab 2 did not abort tabs 1 and 3; exactly one result.
	assert.Equal(t, []int{1, 2, 3}, ctrl.closed)
	assert.Equal(t, 1, sender.count())
}

func TestDispatch_ReorderTabs_EchoesRequestedOrder(t *testing.T) {
	ctrl := &mockController{moveErrFor: map[int]error{7: errors.New("no such tab")}}
	d, sender := setup(t, ctrl)

	order := []int{3, 7, 1}
	handle(t, d, protocol.Command{Cmd: protocol.CmdReorderTabs, CorrelationID: "c1", TabOrder: order})

	res := sender.waitOne(t)
	assert.Equal(t, protocol.ResourceTabsReordered, res.Resource)
	// Echoes the requested order even though moving tab 7 failed.
	assert.Equal(t, order, res.TabOrder)
	assert.Equal(t, [][2]int{{3, 0}, {7, 1}, {1, 2}}, ctrl.moved)
}

func TestDispatch_TabContent_LinksOnlyAtOffsetZero(t *testing.T) {
	ctrl := &mockController{content: agent.TabContent{
		Text:        "windowed text",
		IsTruncated: true,
		TotalLength: 120000,
		Links:       []protocol.Link{{URL: "https://example.com/a", Text: "A"}},
	}}
	d, sender := setup(t, ctrl)

	handle(t, d, protocol.Command{Cmd: protocol.CmdGetTabContent, CorrelationID: "c1", TabID: 42})
	first := sender.waitOne(t)
	assert.Equal(t, protocol.ResourceTabContent, first.Resource)
	assert.True(t, first.IsTruncated)
	assert.Equal(t, 120000, first.TotalLength)
	assert.NotEmpty(t, first.Links)

	handle(t, d, protocol.Command{Cmd: protocol.CmdGetTabContent, CorrelationID: "c2", TabID: 42, Offset: 50000})
	second := sender.waitOne(t)
	assert.Equal(t, 50000, second.Offset)
	assert.Empty(t, second.Links, "continuation windows must not resend the link list")
}

func TestDispatch_FindHighlight(t *testing.T) {
	ctrl := &mockController{highlightN: 5}
	d, sender := setup(t, ctrl)

	handle(t, d, protocol.Command{Cmd: protocol.CmdFindHighlight, CorrelationID: "c1", TabID: 3, QueryPhrase: "kernel"})

	res := sender.waitOne(t)
	assert.Equal(t, protocol.ResourceFindHighlightResult, res.Resource)
	assert.Equal(t, 5, res.NoOfResults)
	assert.Equal(t, []string{"kernel"}, ctrl.highlighted)
}

func TestDispatch_GroupTabs(t *testing.T) {
	ctrl := &mockController{}
	d, sender := setup(t, ctrl)

	handle(t, d, protocol.Command{
		Cmd: protocol.CmdGroupTabs, CorrelationID: "c1",
		GroupTabIDs: []int{1, 2}, IsCollapsed: true, GroupColor: "blue", GroupTitle: "docs",
	})

	res := sender.waitOne(t)
	assert.Equal(t, protocol.ResourceTabGroup, res.Resource)
	assert.Equal(t, "group-1", res.GroupID)
}

func TestDispatch_DuplicateDeliveryExecutesOnce(t *testing.T) {
	ctrl := &mockController{}
	d, sender := setup(t, ctrl)

	// The front-end fans out to every open endpoint, so the same command can
	// arrive twice on an agent dialing two ports.
	cmd := protocol.Command{Cmd: protocol.CmdOpenTab, CorrelationID: "dup-1", URL: "https://example.com"}
	handle(t, d, cmd)
	handle(t, d, cmd)

	sender.waitOne(t)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, ctrl.opened, 1)
	assert.Equal(t, 1, sender.count())
}

func TestDispatch_UnknownKindIsDroppedAndLoopSurvives(t *testing.T) {
	ctrl := &mockController{}
	d, sender := setup(t, ctrl)

	handle(t, d, protocol.Command{Cmd: "self-destruct", CorrelationID: "c1"})
	d.HandleInbound([]byte(`completely broken`))

	// The dispatcher must keep serving after the bad messages.
	handle(t, d, protocol.Command{Cmd: protocol.CmdGetTabList, CorrelationID: "c2"})
	res := sender.waitOne(t)
	assert.Equal(t, protocol.ResourceTabs, res.Resource)
}

// TestDispatch_CommandSetIsExhaustive ensures every kind in the closed
// vocabulary is handled: each must produce exactly one result (open-tab has
// its own drop rules, exercised above with a safe URL here).
func TestDispatch_CommandSetIsExhaustive(t *testing.T) {
	for _, kind := range protocol.AllCommands {
		t.Run(kind, func(t *testing.T) {
			ctrl := &mockController{}
			d, sender := setup(t, ctrl)

			cmd := protocol.Command{Cmd: kind, CorrelationID: "c-" + kind}
			if kind == protocol.CmdOpenTab {
				cmd.URL = "https://example.com"
			}
			if kind == protocol.CmdGroupTabs {
				cmd.GroupTabIDs = []int{1}
			}
			handle(t, d, cmd)

			res := sender.waitOne(t)
			assert.Equal(t, "c-"+kind, res.CorrelationID)
			assert.NotEqual(t, protocol.ResourceError, res.Resource,
				"kind %s fell through to an error arm", kind)
		})
	}
}
