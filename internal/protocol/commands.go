// Package protocol defines the closed command/result vocabulary exchanged
// between the tool front-end and the browser agent, plus the signed frame
// that carries it. The vocabulary is extensible only by adding new tagged
// kinds to both peers simultaneously.
package protocol

// Command kinds. Every inbound command carries exactly one of these tags;
// the agent dispatcher matches them exhaustively.
const (
	CmdOpenTab          = "open-tab"
	CmdCloseTabs        = "close-tabs"
	CmdGetTabList       = "get-tab-list"
	CmdGetRecentHistory = "get-browser-recent-history"
	CmdGetTabContent    = "get-tab-content"
	CmdReorderTabs      = "reorder-tabs"
	CmdFindHighlight    = "find-highlight"
	CmdGroupTabs        = "group-tabs"
)

// AllCommands lists every command kind. The dispatcher's completeness test
// walks this slice, so a new kind without a handler fails the build's test
// run instead of becoming a silent runtime drop.
var AllCommands = []string{
	CmdOpenTab,
	CmdCloseTabs,
	CmdGetTabList,
	CmdGetRecentHistory,
	CmdGetTabContent,
	CmdReorderTabs,
	CmdFindHighlight,
	CmdGroupTabs,
}

// Command is the tagged request envelope. Cmd selects the operation and
// decides which argument fields are meaningful; unused fields are omitted
// from the canonical serialization. Created once per call by the gateway and
// consumed once by the dispatcher.
type Command struct {
	Cmd           string `json:"cmd"`
	CorrelationID string `json:"correlationId"`

	// open-tab
	URL string `json:"url,omitempty"`

	// close-tabs
	TabIDs []int `json:"tabIds,omitempty"`

	// get-browser-recent-history
	SearchQuery string `json:"searchQuery,omitempty"`

	// get-tab-content, find-highlight
	TabID  int `json:"tabId,omitempty"`
	Offset int `json:"offset,omitempty"`

	// reorder-tabs
	TabOrder []int `json:"tabOrder,omitempty"`

	// find-highlight
	QueryPhrase string `json:"queryPhrase,omitempty"`

	// group-tabs
	GroupTabIDs []int  `json:"groupTabIds,omitempty"`
	IsCollapsed bool   `json:"isCollapsed,omitempty"`
	GroupColor  string `json:"groupColor,omitempty"`
	GroupTitle  string `json:"groupTitle,omitempty"`
}
