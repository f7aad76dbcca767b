package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-resolver/internal/equipment"
	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/resolve"
)

// ConfigOverride adjusts the agent configuration for one request.
type ConfigOverride struct {
	MaxRetries             *int  `json:"maxRetries,omitempty"`
	MinConfidenceThreshold *int  `json:"minConfidenceThreshold,omitempty"`
	EnableResearch         *bool `json:"enablePerplexityResearch,omitempty"`
	Debug                  *bool `json:"debug,omitempty"`
}

func (o *ConfigOverride) apply(cfg resolve.Config) resolve.Config {
	if o == nil {
		return cfg
	}
	if o.MaxRetries != nil {
		cfg.MaxRetries = *o.MaxRetries
	}
	if o.MinConfidenceThreshold != nil {
		cfg.MinConfidenceThreshold = *o.MinConfidenceThreshold
	}
	if o.EnableResearch != nil {
		cfg.EnableResearch = *o.EnableResearch
	}
	if o.Debug != nil {
		cfg.Debug = *o.Debug
	}
	return cfg
}

type resolveRequest struct {
	Field      string              `json:"field"`
	Request    *model.FieldRequest `json:"request,omitempty"`
	DocumentID string              `json:"document_id,omitempty"`
	Context    model.FieldContext  `json:"context"`
	Config     *ConfigOverride     `json:"config,omitempty"`
}

type resolveResponse struct {
	model.FieldResolution
	RetryCount      int                  `json:"retryCount"`
	ResearchInvoked bool                 `json:"researchInvoked"`
	Thoughts        []model.AgentThought `json:"thoughts,omitempty"`
}

type categoryRequest struct {
	Fields     []string           `json:"fields,omitempty"`
	DocumentID string             `json:"document_id,omitempty"`
	Context    model.FieldContext `json:"context"`
	Config     *ConfigOverride    `json:"config,omitempty"`
}

type equipmentRequest struct {
	Items []string `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps pipeline failures to HTTP status codes.
func statusFor(err error) (int, string) {
	switch kind := resolve.KindOf(err); {
	case errors.Is(kind, resolve.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(kind, resolve.ErrRetriesExhausted):
		return http.StatusUnprocessableEntity, "retries_exhausted"
	case errors.Is(kind, resolve.ErrAnalysis):
		return http.StatusBadGateway, "analysis_failed"
	case errors.Is(kind, resolve.ErrSynthesis):
		return http.StatusBadGateway, "synthesis_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, ""
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return eris.Wrap(err, "invalid request body")
	}
	return nil
}

// documentContext merges a stored document into the request context. It
// writes the error response itself and returns false when the request
// cannot continue.
func (s *Server) documentContext(w http.ResponseWriter, r *http.Request, id string, fc model.FieldContext) (model.FieldContext, bool) {
	if id == "" {
		return fc, true
	}
	if s.deps.Store == nil {
		writeError(w, http.StatusBadRequest, "document_id given but no store is configured")
		return fc, false
	}
	doc, err := s.deps.Store.GetDocument(r.Context(), id)
	if err != nil {
		zap.L().Error("load document", zap.String("document_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return fc, false
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found: "+id)
		return fc, false
	}
	merged := doc.Context(fc.CurrentFormData)
	if fc.PDFText != "" {
		merged.PDFText = fc.PDFText
	}
	return merged, true
}

func (s *Server) persist(ctx context.Context, documentID string, res model.FieldResolution) {
	if documentID == "" || s.deps.Store == nil {
		return
	}
	if err := s.deps.Store.SaveResolution(ctx, documentID, res); err != nil {
		zap.L().Error("save resolution",
			zap.String("document_id", documentID),
			zap.String("field", res.FieldName),
			zap.Error(err),
		)
	}
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var body resolveRequest
	if err := decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.FieldRequest
	switch {
	case body.Request != nil:
		req = *body.Request
	case body.Field != "":
		req, _ = s.deps.Catalog.Request(body.Field)
	default:
		writeError(w, http.StatusBadRequest, "field is required")
		return
	}

	fc, ok := s.documentContext(w, r, body.DocumentID, body.Context)
	if !ok {
		return
	}

	cfg := body.Config.apply(s.deps.Agent.Config())
	res, err := s.deps.Agent.ResolveWith(r.Context(), req, fc, cfg)
	if err != nil {
		status, kind := statusFor(err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
		return
	}

	s.persist(r.Context(), body.DocumentID, res.Resolution)
	out := resolveResponse{
		FieldResolution: res.Resolution,
		RetryCount:      res.RetryCount,
		ResearchInvoked: res.ResearchInvoked,
	}
	if cfg.Debug {
		out.Thoughts = res.Thoughts
	}
	writeJSON(w, http.StatusOK, out)
}

// categoryInput decodes a category request and resolves its field list.
func (s *Server) categoryInput(w http.ResponseWriter, r *http.Request) (string, []string, model.FieldContext, categoryRequest, bool) {
	category := chi.URLParam(r, "category")
	var body categoryRequest
	if err := decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", nil, model.FieldContext{}, body, false
	}

	fields := body.Fields
	if len(fields) == 0 {
		var ok bool
		fields, ok = s.deps.Catalog.Category(category)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown category: "+category)
			return "", nil, model.FieldContext{}, body, false
		}
	}

	fc, ok := s.documentContext(w, r, body.DocumentID, body.Context)
	if !ok {
		return "", nil, model.FieldContext{}, body, false
	}
	return category, fields, fc, body, true
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	category, fields, fc, body, ok := s.categoryInput(w, r)
	if !ok {
		return
	}

	cfg := body.Config.apply(s.deps.Agent.Config())
	report, err := s.deps.Orchestrator.ResolveCategoryWith(r.Context(), category, fields, fc, cfg)
	if err != nil {
		status, kind := statusFor(err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
		return
	}
	for _, res := range report.MappedValues {
		s.persist(r.Context(), body.DocumentID, res)
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCategoryStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	_, fields, fc, body, ok := s.categoryInput(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	cfg := body.Config.apply(s.deps.Agent.Config())
	for ev := range s.deps.Orchestrator.ResolveCategoryStreamWith(r.Context(), fields, fc, cfg) {
		if ev.Field != "" && ev.Error == "" {
			s.persist(r.Context(), body.DocumentID, model.FieldResolution{
				FieldName:   ev.Field,
				Value:       ev.Value,
				Confidence:  ev.Confidence,
				Reasoning:   ev.Reasoning,
				Sources:     ev.Sources,
				NeedsReview: ev.NeedsReview,
			})
		}
		data, err := json.Marshal(ev)
		if err != nil {
			zap.L().Error("encode stream event", zap.String("field", ev.Field), zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			zap.L().Debug("stream client gone", zap.Error(err))
			// keep draining so the producer sees the cancelled context
			continue
		}
		flusher.Flush()
	}
}

func (s *Server) handleEquipment(w http.ResponseWriter, r *http.Request) {
	var body equipmentRequest
	if err := decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items := make([]string, 0, len(body.Items))
	for _, it := range body.Items {
		if strings.TrimSpace(it) != "" {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}
	results := s.deps.Equipment.CategorizeAll(r.Context(), items)
	if results == nil {
		results = []equipment.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}
