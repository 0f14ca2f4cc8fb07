package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/justwrite/internal/apperr"
	"github.com/starford/justwrite/internal/record"
	"github.com/starford/justwrite/internal/resource"
)

const maxBodyBytes = 10 << 20

// Handler serves one collection engine over HTTP.
type Handler struct {
	engine *resource.Engine
	logger *slog.Logger
}

// NewHandler creates a handler for e.
func NewHandler(e *resource.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: e, logger: logger}
}

// Serve handles every verb on /<collection> and /<collection>/{id}.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	req := resource.Request{
		Method: r.Method,
		ID:     chi.URLParam(r, "id"),
		Query:  queryFilters(r.URL.Query()),
	}
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		body, err := decodeBody(w, r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		req.Body = body
	}
	h.respond(w, r, h.engine.Dispatch(r.Context(), req))
}

// Tagged handles GET /<collection>/tagged/{tagIDs}, where tagIDs is a
// comma-joined list that every returned record must carry.
func (h *Handler) Tagged(w http.ResponseWriter, r *http.Request) {
	req := resource.Request{
		Method: http.MethodGet,
		Query:  queryFilters(r.URL.Query()),
		Tags:   record.SplitTags(chi.URLParam(r, "tagIDs")),
	}
	h.respond(w, r, h.engine.Dispatch(r.Context(), req))
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, resp resource.Response) {
	if resp.Err != nil {
		h.fail(w, r, resp.Err)
		return
	}
	if resp.Checksum != "" && notModified(w, r, resp.Checksum) {
		return
	}
	writeJSON(w, resp.Status, resp.Payload)
}

// notModified sets the ETag for the snapshot sum and reports whether the
// client's If-None-Match already matches it, in which case 304 has been
// written.
func notModified(w http.ResponseWriter, r *http.Request, sum string) bool {
	etag := `"` + sum + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

// fail writes err as plain text and logs a one-line request summary.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusOf(err)
	logFailure(h.logger, r, status, err)
	writeText(w, status, apperr.MessageOf(err))
}

func logFailure(logger *slog.Logger, r *http.Request, status int, err error) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("request", summarizeRequest(r)),
		slog.Int("status", status),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	logger.LogAttrs(r.Context(), level, "request failed", attrs...)
}

// summarizeRequest renders "METHOD /path?k=v&k2=v2" with keys sorted.
func summarizeRequest(r *http.Request) string {
	method := r.Method
	if method == "" {
		method = "UNKNOWN"
	}
	path := "/"
	if r.URL != nil && r.URL.Path != "" {
		path = r.URL.Path
	}
	if r.URL == nil {
		return method + " " + path
	}
	q := r.URL.Query()
	if len(q) == 0 {
		return method + " " + path
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + q.Get(k)
	}
	return method + " " + path + "?" + strings.Join(pairs, "&")
}

// queryFilters keeps the first value of each query parameter.
func queryFilters(q url.Values) map[string]any {
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]any, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// decodeBody reads a JSON object or a url-encoded form. An empty body
// yields a nil record.
func decodeBody(w http.ResponseWriter, r *http.Request) (record.Record, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, apperr.BadRequest("invalid form body")
		}
		body := make(record.Record, len(r.PostForm))
		for k, vs := range r.PostForm {
			if len(vs) > 0 {
				body[k] = vs[0]
			}
		}
		return body, nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.BadRequest("request body too large")
		}
		return nil, apperr.BadRequest("failed to read body")
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var body record.Record
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apperr.BadRequest("invalid JSON body")
	}
	if body == nil {
		return nil, apperr.BadRequest("invalid JSON body")
	}
	return body, nil
}
