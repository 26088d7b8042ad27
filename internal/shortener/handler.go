package shortener

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sundayezeilo/digestlink/internal/errx"
	"github.com/sundayezeilo/digestlink/internal/httpx"
)

// ShortenRequest is the JSON body of POST /api/shorten.
type ShortenRequest struct {
	URL  string `json:"url"`
	Slug string `json:"slug,omitempty"`
}

// LinkResponse describes a stored mapping.
type LinkResponse struct {
	URL      string `json:"url"`
	Slug     string `json:"slug"`
	ShortURL string `json:"short_url"`
}

// Service is what the handler needs from the Resolver.
type Service interface {
	Resolve(ctx context.Context, rawURL, requestedSlug string) (Result, error)
	Lookup(ctx context.Context, slug string) (string, error)
}

// Handler provides HTTP handlers for the URL shortener service.
type Handler struct {
	service Service
	logger  *slog.Logger
	baseURL string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service Service
	Logger  *slog.Logger
	BaseURL string // prefix of short URLs in responses, e.g. "https://sho.rt"
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: cfg.Service,
		logger:  logger,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

// Routes registers the shortener endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/shorten", h.Shorten)
	r.Get("/api/links/{slug}", h.GetLink)
	r.Get("/{slug}", h.Redirect)
}

// Shorten registers a URL. It answers 201 for a new mapping and 200 when the
// mapping already existed.
func (h *Handler) Shorten(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[ShortenRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteKind(w, err, strings.TrimPrefix(err.Error(), errx.OpOf(err)+": "), nil)
		return
	}

	res, err := h.service.Resolve(ctx, req.URL, req.Slug)
	if err != nil {
		h.handleShortenError(ctx, logger, w, err, req)
		return
	}

	status := http.StatusCreated
	if res.Existed {
		status = http.StatusOK
	}

	logger.InfoContext(ctx, "url shortened",
		"slug", res.Slug,
		"existed", res.Existed,
		"custom_slug", req.Slug != "",
	)

	httpx.WriteJSON(w, status, h.linkResponse(res.Slug, res.URL))
}

// GetLink returns the mapping for a slug as JSON.
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	url, err := h.service.Lookup(r.Context(), slug)
	if err != nil {
		h.handleLookupError(r.Context(), h.requestLogger(r), w, err, slug)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, h.linkResponse(slug, url))
}

// Redirect sends the client to the URL stored for the slug.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	slug := chi.URLParam(r, "slug")

	url, err := h.service.Lookup(ctx, slug)
	if err != nil {
		h.handleLookupError(ctx, logger, w, err, slug)
		return
	}

	logger.DebugContext(ctx, "redirecting", "slug", slug, "url", url)
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) handleShortenError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, req ShortenRequest) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"url", req.URL,
		"slug", req.Slug,
	}

	switch kind {
	case errx.Invalid:
		logger.WarnContext(ctx, "invalid shorten request", logAttrs...)
		httpx.WriteKind(w, err, rootMessage(err), nil)

	case errx.Conflict:
		logger.WarnContext(ctx, "slug conflict", logAttrs...)
		httpx.WriteKind(w, err, "This slug is already taken",
			map[string]string{
				"hint": "Try a different slug or omit it to get a generated one",
			})

	case errx.Exhausted:
		logger.ErrorContext(ctx, "no slug available", logAttrs...)
		httpx.WriteKind(w, err, "Unable to assign a slug to this URL", nil)

	default:
		logger.ErrorContext(ctx, "store failure while shortening", logAttrs...)
		httpx.WriteKind(w, err, "Unable to create short link at this time. Please try again.", nil)
	}
}

func (h *Handler) handleLookupError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, slug string) {
	if errx.KindOf(err) == errx.NotFound {
		logger.InfoContext(ctx, "slug not found", "slug", slug)
		httpx.WriteKind(w, err, fmt.Sprintf("URL for slug %s not found", slug), nil)
		return
	}

	logger.ErrorContext(ctx, "store failure while resolving slug",
		"error", err.Error(),
		"error_kind", errx.KindOf(err),
		"slug", slug,
	)
	httpx.WriteKind(w, err, "Unable to resolve this link at this time", nil)
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

func (h *Handler) linkResponse(slug, url string) LinkResponse {
	return LinkResponse{
		URL:      url,
		Slug:     slug,
		ShortURL: h.baseURL + "/" + slug,
	}
}

// rootMessage strips the op chain so clients see only the innermost message.
func rootMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
