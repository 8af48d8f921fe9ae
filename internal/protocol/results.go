package protocol

// Result resource kinds, one per command plus "error" for single-target
// primitive failures.
const (
	ResourceOpenedTabID         = "opened-tab-id"
	ResourceTabsClosed          = "tabs-closed"
	ResourceTabs                = "tabs"
	ResourceHistory             = "history"
	ResourceTabContent          = "tab-content"
	ResourceTabsReordered       = "tabs-reordered"
	ResourceFindHighlightResult = "find-highlight-result"
	ResourceTabGroup            = "tab-group"
	ResourceError               = "error"
)

// TabInfo describes a single open tab as reported by the agent.
type TabInfo struct {
	ID      int    `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Index   int    `json:"index"`
	GroupID string `json:"groupId,omitempty"`
}

// HistoryItem is one entry of the agent's recent-navigation record.
type HistoryItem struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	LastVisitedMs int64  `json:"lastVisitedMs"`
}

// Link is an anchor extracted from a page, returned only on the first
// content window (offset 0) of a document.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Result is the tagged reply envelope. Resource names the kind of payload
// and CorrelationID ties it back to the originating Command; the remaining
// fields are populated per resource kind.
type Result struct {
	Resource      string `json:"resource"`
	CorrelationID string `json:"correlationId"`

	// opened-tab-id
	TabID int `json:"tabId,omitempty"`

	// tabs
	Tabs []TabInfo `json:"tabs,omitempty"`

	// history
	History []HistoryItem `json:"history,omitempty"`

	// tab-content. IsTruncated/TotalLength are always serialized so a
	// continuation caller can compute the next offset without guessing.
	FullText    string `json:"fullText,omitempty"`
	IsTruncated bool   `json:"isTruncated"`
	Offset      int    `json:"offset"`
	TotalLength int    `json:"totalLength"`
	Links       []Link `json:"links,omitempty"`

	// tabs-reordered (echoes the requested order, not the achieved one)
	TabOrder []int `json:"tabOrder,omitempty"`

	// find-highlight-result
	NoOfResults int `json:"noOfResults"`

	// tab-group
	GroupID string `json:"groupId,omitempty"`

	// error
	ErrorMessage string `json:"errorMessage,omitempty"`
}
