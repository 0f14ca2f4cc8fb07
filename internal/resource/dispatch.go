package resource

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starford/justwrite/internal/apperr"
	"github.com/starford/justwrite/internal/record"
)

// Request is a transport-neutral operation request.
type Request struct {
	Method string
	// ID is the path identifier; empty for collection-level requests.
	ID string
	// Query holds filter parameters.
	Query map[string]any
	Body  record.Record
	// Tags, when non-nil on a GET without ID, selects the tagged listing.
	Tags []string
}

// Response is the outcome of Dispatch. Err is set for every non-2xx status.
type Response struct {
	Status  int
	Payload any
	Err     error
	// Checksum identifies the snapshot a successful read was served from.
	Checksum string
}

// Dispatch maps req onto an engine operation:
//
//	GET    /<resource>               list with filters
//	GET    /<resource>/tagged/<ids>  tagged list (Request.Tags) with filters
//	GET    /<resource>/<id>          get (filters ignored)
//	POST   /<resource>               create (filters ignored)
//	POST   /<resource>/<id>          405
//	PUT    /<resource>/<id>          replace
//	DELETE /<resource>/<id>          delete
func (e *Engine) Dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case http.MethodGet:
		if req.Tags != nil {
			data, sum, err := e.tagged(ctx, req.Tags, req.Query)
			return snapshot(data, sum, err)
		}
		if req.ID == "" {
			data, sum, err := e.list(ctx, req.Query)
			return snapshot(data, sum, err)
		}
		e.ignoreFilters(req)
		rec, sum, err := e.get(ctx, req.ID)
		return snapshot(rec, sum, err)

	case http.MethodPost:
		e.ignoreFilters(req)
		if req.ID != "" {
			return fail(apperr.MethodNotAllowed("POST to specific ID not supported; use PUT instead"))
		}
		rec, _, err := e.Create(ctx, req.Body)
		return respond(http.StatusCreated, rec, err)

	case http.MethodPut:
		e.ignoreFilters(req)
		rec, _, err := e.Replace(ctx, req.ID, req.Body)
		return respond(http.StatusOK, rec, err)

	case http.MethodDelete:
		e.ignoreFilters(req)
		data, err := e.Delete(ctx, req.ID)
		return respond(http.StatusOK, data, err)
	}
	return fail(apperr.MethodNotAllowed(""))
}

func (e *Engine) ignoreFilters(req Request) {
	if len(req.Query) > 0 {
		e.logger.Warn("Filters ignored",
			slog.String("collection", e.name),
			slog.String("method", req.Method),
			slog.String("id", req.ID))
	}
}

func respond(status int, payload any, err error) Response {
	if err != nil {
		return fail(err)
	}
	return Response{Status: status, Payload: payload}
}

func snapshot(payload any, sum string, err error) Response {
	if err != nil {
		return fail(err)
	}
	return Response{Status: http.StatusOK, Payload: payload, Checksum: sum}
}

func fail(err error) Response {
	return Response{Status: apperr.StatusOf(err), Payload: apperr.MessageOf(err), Err: err}
}
