// Package httpapi exposes broadcasts and the delivery log over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"wadispatch/internal/broadcast"
	"wadispatch/internal/delivery"
	"wadispatch/internal/strategy"
	"wadispatch/pkg/logx"
)

const DefaultMaxRecipients = 1000

type Broadcaster interface {
	Run(ctx context.Context, recipients []broadcast.Recipient, mt strategy.MessageType, campaign string) (broadcast.Result, error)
}

type Jobs interface {
	NewJob(req broadcast.Request) (string, error)
	Status(id string) (broadcast.JobStatus, bool)
}

type Deliveries interface {
	Query(ctx context.Context, f delivery.Filter, limit, offset int) ([]delivery.Entry, error)
}

type Options struct {
	Broadcasts Broadcaster
	Jobs       Jobs
	Deliveries Deliveries
	// NormalizePhone canonicalizes the phone query filter; nil leaves it as-is.
	NormalizePhone func(string) string
	// Health adds details to GET /health.
	Health        func() map[string]any
	MaxRecipients int
	Profiler      bool
	Log           logx.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	opt Options
	log logx.Logger
}

func New(opt Options) *Handler {
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.MaxRecipients <= 0 {
		opt.MaxRecipients = DefaultMaxRecipients
	}
	return &Handler{opt: opt, log: log}
}

type messageReq struct {
	Type         string `json:"type"`
	TemplateName string `json:"template_name,omitempty"`
	Language     string `json:"language,omitempty"`
	Body         string `json:"body,omitempty"`
	AgentID      string `json:"agent_id,omitempty"`
	Context      string `json:"context,omitempty"`
}

type broadcastReq struct {
	CampaignName string                `json:"campaign_name"`
	Recipients   []broadcast.Recipient `json:"recipients"`
	Message      messageReq            `json:"message"`
	Async        bool                  `json:"async,omitempty"`
}

// CreateBroadcast handles POST /api/broadcasts
func (h *Handler) CreateBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastReq
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.CampaignName) == "" {
		jsonError(w, "campaign_name is required", http.StatusBadRequest)
		return
	}
	if len(req.Recipients) > h.opt.MaxRecipients {
		jsonError(w, fmt.Sprintf("too many recipients (max %d)", h.opt.MaxRecipients), http.StatusBadRequest)
		return
	}
	m := req.Message
	mt, err := strategy.Parse(m.Type, m.TemplateName, m.Language, m.Body, m.AgentID, m.Context)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Async {
		h.enqueue(w, req, mt)
		return
	}

	res, err := h.opt.Broadcasts.Run(r.Context(), req.Recipients, mt, req.CampaignName)
	switch {
	case err == nil:
		jsonOK(w, http.StatusOK, res)
	case broadcast.IsClientError(err):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, broadcast.ErrConfiguration):
		h.log.Warn("broadcast rejected", logx.String("campaign", req.CampaignName), logx.Err(err))
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Attempts made before the cancel are already in the delivery log.
		h.log.Info("broadcast cancelled", logx.String("campaign", req.CampaignName), logx.Int("processed", res.Total), logx.Err(err))
		jsonOK(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "result": res})
	default:
		h.log.Error("broadcast failed", logx.String("campaign", req.CampaignName), logx.Err(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) enqueue(w http.ResponseWriter, req broadcastReq, mt strategy.MessageType) {
	if h.opt.Jobs == nil {
		jsonError(w, broadcast.ErrDisabled.Error(), http.StatusServiceUnavailable)
		return
	}
	id, err := h.opt.Jobs.NewJob(broadcast.Request{
		Campaign:   req.CampaignName,
		Recipients: req.Recipients,
		Message:    mt,
		Source:     "api",
	})
	switch {
	case err == nil:
		jsonOK(w, http.StatusAccepted, map[string]string{"job_id": id})
	case broadcast.IsClientError(err):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, broadcast.ErrQueueFull):
		w.Header().Set("Retry-After", "5")
		jsonOK(w, http.StatusTooManyRequests, map[string]string{"job_id": id, "error": err.Error()})
	default:
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
	}
}

// GetBroadcast handles GET /api/broadcasts/{id}
func (h *Handler) GetBroadcast(w http.ResponseWriter, r *http.Request) {
	if h.opt.Jobs == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	st, ok := h.opt.Jobs.Status(chi.URLParam(r, "id"))
	if !ok {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	jsonOK(w, http.StatusOK, st)
}

// ListDeliveries handles GET /api/deliveries
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := delivery.ParseStatus(q.Get("status"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		jsonError(w, "invalid limit", http.StatusBadRequest)
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		jsonError(w, "invalid offset", http.StatusBadRequest)
		return
	}
	f := delivery.Filter{
		CampaignName: strings.TrimSpace(q.Get("campaign")),
		Status:       status,
		Phone:        strings.TrimSpace(q.Get("phone")),
	}
	if f.Phone != "" && h.opt.NormalizePhone != nil {
		f.Phone = h.opt.NormalizePhone(f.Phone)
	}

	entries, err := h.opt.Deliveries.Query(r.Context(), f, limit, offset)
	if err != nil {
		h.log.Error("delivery query failed", logx.Err(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []delivery.Entry{}
	}
	jsonOK(w, http.StatusOK, entries)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.opt.Health != nil {
		for k, v := range h.opt.Health() {
			body[k] = v
		}
	}
	jsonOK(w, http.StatusOK, body)
}

func intParam(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

// --- helpers ---

func jsonOK(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	jsonOK(w, status, map[string]string{"error": msg})
}
