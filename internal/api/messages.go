package api

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/companygpt/sidekick/internal/convert"
	"github.com/companygpt/sidekick/internal/httpx"
	"github.com/companygpt/sidekick/internal/inject"
)

// Message types accepted on /messages.
const (
	TypeCheckAuth         = "CHECK_AUTH"
	TypeAPIRequest        = "API_REQUEST"
	TypeGetPageContext    = "GET_PAGE_CONTEXT"
	TypeExtractSharePoint = "EXTRACT_SHAREPOINT_DOCUMENT"
	TypeExtractGoogleDocs = "EXTRACT_GOOGLE_DOCS"
	TypeInsertEmailReply  = "INSERT_EMAIL_REPLY"
	TypeTabInfo           = "TAB_INFO"
)

// Envelope is the uniform request shape: a type tag plus a type-specific
// payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid message envelope")
		return
	}

	ctx := r.Context()
	switch env.Type {
	case TypeCheckAuth:
		snap := s.resolver.Resolve(ctx, false)
		s.writeJSON(w, map[string]any{
			"ok":               true,
			"isAuthenticated":  snap.Authenticated,
			"tenant":           snap.Tenant,
			"multiTenant":      snap.MultiTenant,
			"availableTenants": snap.AvailableTenants,
		})

	case TypeAPIRequest:
		var req httpx.Request
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid API_REQUEST payload")
			return
		}
		s.writeJSON(w, s.broker.Request(ctx, req))

	case TypeGetPageContext:
		tab, err := s.tabs.Active(ctx)
		if err != nil {
			s.writeError(w, http.StatusBadGateway, "no active tab")
			return
		}
		a, err := s.agents.Attach(ctx, tab)
		if err != nil {
			s.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		var payload struct {
			Selection string `json:"selection"`
		}
		if len(env.Payload) > 0 {
			_ = json.Unmarshal(env.Payload, &payload)
		}
		pctx, err := a.ExtractContent(ctx, payload.Selection)
		if err != nil {
			// Partial context (advisories) still ships alongside the error.
			s.writeJSON(w, map[string]any{"ok": false, "error": err.Error(), "context": pctx})
			return
		}
		s.writeJSON(w, map[string]any{"ok": true, "context": pctx})

	case TypeExtractSharePoint:
		s.handleExtractSharePoint(w, r, env.Payload)

	case TypeExtractGoogleDocs:
		s.handleExtractGoogleDocs(w, r, env.Payload)

	case TypeInsertEmailReply:
		var payload struct {
			Data     string `json:"data"`
			Provider string `json:"provider"`
		}
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.Data == "" {
			s.writeError(w, http.StatusBadRequest, "invalid INSERT_EMAIL_REPLY payload")
			return
		}
		rec, err := s.injector.Insert(ctx, payload.Data)
		if err != nil {
			s.writeJSON(w, inject.Record{OK: false, Method: rec.Method, Message: err.Error()})
			return
		}
		s.writeJSON(w, rec)

	case TypeTabInfo:
		tab, err := s.tabs.Active(ctx)
		if err != nil {
			s.writeError(w, http.StatusBadGateway, "no active tab")
			return
		}
		s.writeJSON(w, tab)

	default:
		s.writeError(w, http.StatusBadRequest, "unknown message type "+env.Type)
	}
}

func (s *Server) handleExtractSharePoint(w http.ResponseWriter, r *http.Request, payload json.RawMessage) {
	var req struct {
		SourceDoc string `json:"sourceDoc"`
		FileURL   string `json:"fileUrl"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.FileURL == "" {
		s.writeError(w, http.StatusBadRequest, "invalid EXTRACT_SHAREPOINT_DOCUMENT payload")
		return
	}

	data, contentType, err := s.broker.Download(r.Context(), req.FileURL)
	if err != nil {
		s.writeJSON(w, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	name := path.Base(strings.SplitN(req.FileURL, "?", 2)[0])
	res := s.conv.Convert(name, contentType, data)
	content := res.Text
	if content == "" {
		content = res.Advisory
	}
	s.writeJSON(w, map[string]any{
		"ok":       res.OK,
		"content":  content,
		"method":   convert.MethodName(res.Format),
		"fileType": strings.TrimPrefix(path.Ext(name), "."),
	})
}

func (s *Server) handleExtractGoogleDocs(w http.ResponseWriter, r *http.Request, payload json.RawMessage) {
	var req struct {
		DocID string `json:"docId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.DocID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid EXTRACT_GOOGLE_DOCS payload")
		return
	}
	data, _, err := s.broker.Download(r.Context(), s.cfg.DocsExportURL(req.DocID))
	if err != nil {
		s.writeJSON(w, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	content := strings.TrimSpace(string(data))
	s.writeJSON(w, map[string]any{"ok": true, "content": content, "length": len(content)})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": msg})
}
