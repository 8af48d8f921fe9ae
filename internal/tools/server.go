package tools

import (
	"context"
	"errors"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabwire/internal/gateway"
)

var httpJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the local HTTP bridge the tool-dispatch layer calls. It binds a
// loopback address only; there is no auth because the transport boundary is
// the signed bus, not this socket.
type Server struct {
	browser *Browser
	logger  *zap.Logger
	httpSrv *http.Server
}

// NewServer builds the bridge around a Browser surface.
func NewServer(addr string, browser *Browser, logger *zap.Logger) *Server {
	s := &Server{
		browser: browser,
		logger:  logger.Named("tools"),
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	// Go 1.21's ServeMux has no method patterns; postOnly replicates the
	// "POST /path" behavior (405 with Allow header on other methods).
	postOnly := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				w.Header().Set("Allow", http.MethodPost)
				http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("/v1/open-tab", postOnly(s.handleOpenTab))
	mux.HandleFunc("/v1/close-tabs", postOnly(s.handleCloseTabs))
	mux.HandleFunc("/v1/tabs", postOnly(s.handleListTabs))
	mux.HandleFunc("/v1/history", postOnly(s.handleRecentHistory))
	mux.HandleFunc("/v1/tab-content", postOnly(s.handleTabContent))
	mux.HandleFunc("/v1/reorder-tabs", postOnly(s.handleReorderTabs))
	mux.HandleFunc("/v1/find-highlight", postOnly(s.handleFindHighlight))
	mux.HandleFunc("/v1/group-tabs", postOnly(s.handleGroupTabs))
	return mux
}

// ListenAndServe blocks until the server stops. http.ErrServerClosed is
// filtered so a clean Shutdown reads as a nil error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Tool bridge listening", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the route table for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

type openTabRequest struct {
	URL string `json:"url"`
}

type openTabResponse struct {
	TabID int `json:"tabId"`
}

func (s *Server) handleOpenTab(w http.ResponseWriter, r *http.Request) {
	var req openTabRequest
	if !s.decode(w, r, &req) {
		return
	}
	tabID, err := s.browser.OpenTab(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, openTabResponse{TabID: tabID})
}

type closeTabsRequest struct {
	TabIDs []int `json:"tabIds"`
}

func (s *Server) handleCloseTabs(w http.ResponseWriter, r *http.Request) {
	var req closeTabsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.browser.CloseTabs(r.Context(), req.TabIDs); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]bool{"closed": true})
}

func (s *Server) handleListTabs(w http.ResponseWriter, r *http.Request) {
	tabs, err := s.browser.ListTabs(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"tabs": tabs})
}

type historyRequest struct {
	SearchQuery string `json:"searchQuery"`
}

func (s *Server) handleRecentHistory(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if !s.decode(w, r, &req) {
		return
	}
	items, err := s.browser.RecentHistory(r.Context(), req.SearchQuery)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"history": items})
}

type tabContentRequest struct {
	TabID  int `json:"tabId"`
	Offset int `json:"offset"`
}

func (s *Server) handleTabContent(w http.ResponseWriter, r *http.Request) {
	var req tabContentRequest
	if !s.decode(w, r, &req) {
		return
	}
	content, err := s.browser.TabContent(r.Context(), req.TabID, req.Offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, content)
}

type reorderTabsRequest struct {
	TabOrder []int `json:"tabOrder"`
}

func (s *Server) handleReorderTabs(w http.ResponseWriter, r *http.Request) {
	var req reorderTabsRequest
	if !s.decode(w, r, &req) {
		return
	}
	order, err := s.browser.ReorderTabs(r.Context(), req.TabOrder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"tabOrder": order})
}

type findHighlightRequest struct {
	TabID       int    `json:"tabId"`
	QueryPhrase string `json:"queryPhrase"`
}

func (s *Server) handleFindHighlight(w http.ResponseWriter, r *http.Request) {
	var req findHighlightRequest
	if !s.decode(w, r, &req) {
		return
	}
	count, err := s.browser.FindHighlight(r.Context(), req.TabID, req.QueryPhrase)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]int{"noOfResults": count})
}

type groupTabsRequest struct {
	GroupTabIDs []int  `json:"groupTabIds"`
	IsCollapsed bool   `json:"isCollapsed"`
	GroupColor  string `json:"groupColor"`
	GroupTitle  string `json:"groupTitle"`
}

func (s *Server) handleGroupTabs(w http.ResponseWriter, r *http.Request) {
	var req groupTabsRequest
	if !s.decode(w, r, &req) {
		return
	}
	groupID, err := s.browser.GroupTabs(r.Context(), req.GroupTabIDs, req.IsCollapsed, req.GroupColor, req.GroupTitle)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"groupId": groupID})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpJSON.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := httpJSON.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

// writeError maps gateway failures onto HTTP status codes: timeouts become
// 504, agent-reported errors 502, anything else 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gateway.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, gateway.ErrAgent):
		status = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = httpJSON.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
