// Package http provides the HTTP surface for the metering service.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hoaworks/metergate/adapters/metrics"
	"github.com/hoaworks/metergate/adapters/renderer"
	"github.com/hoaworks/metergate/app"
	"github.com/hoaworks/metergate/domain/artifact"
	"github.com/hoaworks/metergate/domain/quota"
	"github.com/hoaworks/metergate/ports"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code and human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler exposes the metering services over HTTP.
type Handler struct {
	gate      *app.GateService
	credits   *app.CreditService
	upgrades  *app.UpgradeService
	artifacts ports.ArtifactStore
	renderer  ports.Renderer
	provider  ports.PaymentProvider
	idGen     ports.IDGenerator
	clock     ports.Clock
	logger    zerolog.Logger
	metrics   *metrics.Collector
}

// NewHandler creates the HTTP handler.
func NewHandler(
	gate *app.GateService,
	credits *app.CreditService,
	upgrades *app.UpgradeService,
	artifacts ports.ArtifactStore,
	rend ports.Renderer,
	provider ports.PaymentProvider,
	idGen ports.IDGenerator,
	clock ports.Clock,
	logger zerolog.Logger,
	m *metrics.Collector,
) *Handler {
	return &Handler{
		gate:      gate,
		credits:   credits,
		upgrades:  upgrades,
		artifacts: artifacts,
		renderer:  rend,
		provider:  provider,
		idGen:     idGen,
		clock:     clock,
		logger:    logger,
		metrics:   m,
	}
}

// Router builds the chi router.
func (h *Handler) Router(metricsEnabled bool, metricsPath string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.instrument)
	}

	r.Get("/healthz", h.handleHealth)
	if metricsEnabled {
		r.Handle(metricsPath, promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/letters", h.handleGenerate(quota.FeatureViolationLetters))
		r.Post("/videos", h.handleGenerate(quota.FeatureVideos))
		r.Get("/artifacts/{id}", h.handleGetArtifact)
		r.Post("/credits/deduct", h.handleDeduct)
		r.Get("/accounts/{key}/usage", h.handleUsage)
	})

	r.Post("/webhooks/paddle", h.handlePaddleWebhook)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type generateRequest struct {
	Account string          `json:"account"`
	Params  json.RawMessage `json:"params"`
}

type generateResponse struct {
	ArtifactID string `json:"artifact_id"`
	Status     string `json:"status"`
	ResultURL  string `json:"result_url,omitempty"`
	Used       int64  `json:"used"`
	Limit      string `json:"limit"`
	Tier       string `json:"tier"`
}

type deniedResponse struct {
	Error        ErrorDetail `json:"error"`
	Feature      string      `json:"feature"`
	Limit        string      `json:"limit"`
	Used         int64       `json:"used"`
	OfferUpgrade bool        `json:"offer_upgrade"`
}

// handleGenerate gates a billable generation: admission first, then
// artifact creation and the render call as the gated action.
func (h *Handler) handleGenerate(feature quota.Feature) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req generateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		if req.Account == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "account is required")
			return
		}
		params := string(req.Params)
		if params == "" {
			params = "{}"
		}

		art := artifact.Artifact{
			ID:         h.idGen.New(),
			AccountKey: req.Account,
			Feature:    feature,
			Status:     artifact.StatusPending,
			Params:     params,
			CreatedAt:  h.clock.Now().UTC(),
			UpdatedAt:  h.clock.Now().UTC(),
		}

		var actionErr error
		result, err := h.gate.CheckAndConsume(ctx, req.Account, feature, func(ctx2 context.Context) error {
			if err := h.artifacts.Create(ctx2, art); err != nil {
				return err
			}
			if err := h.artifacts.UpdateStatus(ctx2, art.ID, artifact.StatusProcessing, "", h.clock.Now().UTC()); err != nil {
				return err
			}

			url, err := h.renderer.Render(ctx2, feature, params)
			if err != nil {
				actionErr = err
				if stErr := h.artifacts.UpdateStatus(ctx2, art.ID, artifact.StatusFailed, "", h.clock.Now().UTC()); stErr != nil {
					h.logger.Error().Err(stErr).Str("artifact", art.ID).Msg("failed to mark artifact failed")
				}
				return err
			}

			art.ResultURL = url
			return h.artifacts.UpdateStatus(ctx2, art.ID, artifact.StatusCompleted, url, h.clock.Now().UTC())
		})

		if err != nil && actionErr == nil {
			h.countGate(feature, "", "error")
			h.writeServiceError(w, err)
			return
		}

		if !result.Allowed {
			h.countGate(feature, string(result.Tier), "denied")
			writeJSON(w, http.StatusForbidden, deniedResponse{
				Error: ErrorDetail{
					Code:    "quota_exceeded",
					Message: "monthly quota reached for " + string(feature),
				},
				Feature:      string(result.Feature),
				Limit:        result.Limit.String(),
				Used:         result.Used,
				OfferUpgrade: result.OfferUpgrade,
			})
			return
		}

		if actionErr != nil {
			h.countGate(feature, string(result.Tier), "action_failed")
			if errors.Is(actionErr, renderer.ErrUnavailable) {
				writeError(w, http.StatusBadGateway, "upstream_unavailable", "generation backend unavailable")
				return
			}
			writeError(w, http.StatusInternalServerError, "generation_failed", actionErr.Error())
			return
		}

		outcome := "allowed"
		if result.FailOpen {
			outcome = "allowed_fail_open"
		}
		h.countGate(feature, string(result.Tier), outcome)

		writeJSON(w, http.StatusOK, generateResponse{
			ArtifactID: art.ID,
			Status:     string(artifact.StatusCompleted),
			ResultURL:  art.ResultURL,
			Used:       result.Used,
			Limit:      result.Limit.String(),
			Tier:       string(result.Tier),
		})
	}
}

func (h *Handler) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	art, err := h.artifacts.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         art.ID,
		"account":    art.AccountKey,
		"feature":    string(art.Feature),
		"status":     string(art.Status),
		"result_url": art.ResultURL,
		"created_at": art.CreatedAt,
	})
}

type deductRequest struct {
	Account string `json:"account"`
}

type deductResponse struct {
	PreviousBalance      int64 `json:"previous_balance"`
	NewBalance           int64 `json:"new_balance"`
	VideosThisMonth      int64 `json:"videos_this_month"`
	TotalVideosGenerated int64 `json:"total_videos_generated"`
}

func (h *Handler) handleDeduct(w http.ResponseWriter, r *http.Request) {
	var req deductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Account == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "account is required")
		return
	}

	result, err := h.credits.Deduct(r.Context(), req.Account)
	if err != nil {
		h.countDeduct("error")
		h.writeServiceError(w, err)
		return
	}

	if !result.Deducted() {
		h.countDeduct("insufficient")
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error": ErrorDetail{
				Code:    "insufficient_credits",
				Message: "no credits remaining, purchase more to continue",
			},
			"current_balance": result.PreviousBalance,
		})
		return
	}

	h.countDeduct("deducted")
	writeJSON(w, http.StatusOK, deductResponse{
		PreviousBalance:      result.PreviousBalance,
		NewBalance:           result.NewBalance,
		VideosThisMonth:      result.VideosThisMonth,
		TotalVideosGenerated: result.TotalVideosGenerated,
	})
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	summary, err := h.gate.Summary(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	features := make([]map[string]any, 0, len(summary.Features))
	for _, f := range summary.Features {
		features = append(features, map[string]any{
			"feature": string(f.Feature),
			"used":    f.Used,
			"limit":   f.Limit.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account":                summary.AccountKey,
		"tier":                   string(summary.Tier),
		"period":                 summary.PeriodKey,
		"features":               features,
		"credit_balance":         summary.CreditBalance,
		"videos_this_month":      summary.VideosThisMonth,
		"total_videos_generated": summary.TotalVideosGenerated,
	})
}

func (h *Handler) handlePaddleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read webhook body")
		return
	}

	ev, err := h.provider.ParseWebhook(payload)
	if err != nil {
		h.countWebhook("unknown", "parse_error")
		writeError(w, http.StatusBadRequest, "bad_webhook", err.Error())
		return
	}

	res, err := h.upgrades.HandleSubscriptionEvent(r.Context(), ev)
	if err != nil {
		h.countWebhook(string(ev.Type), "error")
		h.logger.Error().Err(err).
			Str("event", string(ev.Type)).
			Str("subscription_id", ev.SubscriptionID).
			Msg("webhook handling failed")
		h.writeServiceError(w, err)
		return
	}

	h.countWebhook(string(ev.Type), "ok")
	if h.metrics != nil && res.CreditsGranted > 0 {
		h.metrics.CreditGrants.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// writeServiceError maps service errors onto HTTP statuses: missing
// accounts are client errors, lost races are conflicts, and upstream
// trouble is a gateway failure so callers can tell retryable from
// permanent.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "account_not_found", "no such account")
	case errors.Is(err, ports.ErrVersionConflict):
		if h.metrics != nil {
			h.metrics.VersionConflicts.Inc()
		}
		writeError(w, http.StatusConflict, "conflict", "concurrent update, retry the request")
	case errors.Is(err, renderer.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "upstream_unavailable", "backend unavailable")
	default:
		h.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		routePath := chi.RouteContext(r.Context()).RoutePattern()
		if routePath == "" {
			routePath = r.URL.Path
		}
		h.metrics.RequestsTotal.WithLabelValues(r.Method, routePath, strconv.Itoa(ww.Status())).Inc()
		h.metrics.RequestDuration.WithLabelValues(r.Method, routePath).Observe(time.Since(start).Seconds())
	})
}

func (h *Handler) countGate(feature quota.Feature, tierLabel, outcome string) {
	if h.metrics != nil {
		h.metrics.GateDecisions.WithLabelValues(string(feature), tierLabel, outcome).Inc()
	}
}

func (h *Handler) countDeduct(outcome string) {
	if h.metrics != nil {
		h.metrics.CreditDeductions.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) countWebhook(eventType, result string) {
	if h.metrics != nil {
		h.metrics.WebhookEvents.WithLabelValues(eventType, result).Inc()
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
