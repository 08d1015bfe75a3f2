package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/binder"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/query"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/recordset"
)

// queryHandler returns the handler serving one API item.
func (s *Server) queryHandler(item query.Item) http.HandlerFunc {
	endpoint := normalizeEndpoint(item.API.Endpoint)

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := s.dispatch(w, r, &item)
		if s.metrics != nil {
			s.metrics.ObserveRequest(endpoint, status, time.Since(start))
		}
	}
}

// dispatch binds the request parameters into item's template, executes
// the query and writes the response. It returns the status written.
//
// Responses:
//   - 500 {"message":"Query item empty"} when item is missing
//   - 400 {"message":"SQL inject data detected."} on any binding failure
//   - 500 {"message":"query execution failed"} when execution fails
//   - 200 {"rows":[...]} otherwise
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, item *query.Item) int {
	if item == nil || item.Template == "" {
		s.logger.Error("query item empty",
			"path", r.URL.Path,
			"defect", "config",
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, msgQueryItemEmpty)
		return http.StatusInternalServerError
	}

	bound, err := binder.Bind(item.Template, requestValues(r), s.secCfg.SQLInjection)
	if err != nil {
		var be *binder.BindingError
		attrs := []any{
			"source", item.Source,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		}
		if errors.As(err, &be) {
			attrs = append(attrs, "placeholder", be.Placeholder)
		}
		s.logger.Warn("request binding rejected", attrs...)
		writeMessage(w, http.StatusBadRequest, msgInjectDetected)
		return http.StatusBadRequest
	}

	s.logger.Debug("executing query",
		"source", item.Source,
		"sql", bound.SQL,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)

	ctx := r.Context()
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	rows, err := s.executor.Query(ctx, bound.SQL)
	if err != nil {
		s.handleError(w, r, err)
		return http.StatusInternalServerError
	}

	body, err := recordset.Encode(rows)
	if err != nil {
		s.handleError(w, r, err)
		return http.StatusInternalServerError
	}

	writeRawJSON(w, http.StatusOK, body)
	return http.StatusOK
}

// requestValues flattens the query string, keeping the first value of
// each key.
func requestValues(r *http.Request) map[string]string {
	q := r.URL.Query()
	values := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			values[k] = v[0]
		}
	}
	return values
}
