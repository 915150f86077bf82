package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/qpindex/internal/models"
	"github.com/hyperjump/qpindex/pkg/utils"
	"go.uber.org/zap"
)

func (s *Server) handleIndexQuestions(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.respondFailure(w, r, "indexQuestions", err)
		return
	}
	questions, err := DecodeQuestions(body)
	if err != nil {
		s.respondFailure(w, r, "indexQuestions", err)
		return
	}
	s.logger.Debug("index questions request", zap.Int("items", len(questions)))
	result, err := s.indexer.IndexBatch(r.Context(), questions)
	if err != nil {
		s.respondFailure(w, r, "indexQuestions", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRetrieveContext(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.respondFailure(w, r, "retrieveContext", err)
		return
	}
	query, err := decodeQuery(body)
	if err != nil {
		s.respondFailure(w, r, "retrieveContext", err)
		return
	}
	s.logger.Debug("retrieve context request", zap.String("query", utils.Truncate(query.Query, 200)), zap.Int("k", query.K))
	results, err := s.retriever.Retrieve(r.Context(), query.Query, query.K)
	if err != nil {
		s.respondFailure(w, r, "retrieveContext", err)
		return
	}
	s.respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleEmbedAndStore(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.respondFailure(w, r, "embedAndStore", err)
		return
	}
	input, err := decodeEmbedInput(body)
	if err != nil {
		s.respondFailure(w, r, "embedAndStore", err)
		return
	}
	if _, err := s.indexer.EmbedAndStore(r.Context(), input); err != nil {
		s.respondFailure(w, r, "embedAndStore", err)
		return
	}
	s.respondJSON(w, http.StatusOK, true)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	n, err := s.storage.Count(r.Context())
	if err != nil {
		// table not created yet or store unreachable
		s.logger.Warn("health: count documents failed", zap.Error(err))
		resp["status"] = "degraded"
	} else {
		resp["documents"] = n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// respondFailure maps an error to a status code and logs it.
func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("kind", models.Kind(err).Error()),
		zap.Error(err),
	}
	if s.logger.Core().Enabled(zap.DebugLevel) {
		fields = append(fields, zap.String("detail", fmt.Sprintf("%+v", err)))
	}

	switch {
	case errors.Is(err, errQueryShape):
		s.logger.Warn(op+": unrecognized body", fields...)
		s.respondError(w, http.StatusBadRequest, queryShapeMessage)
	case errors.Is(err, errBodyTooLarge):
		s.logger.Warn(op+": body too large", fields...)
		s.respondError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, models.ErrMalformedRequest):
		s.logger.Warn(op+": malformed request", fields...)
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op+" failed", fields...)
		resp := map[string]string{"error": err.Error()}
		if s.config.ExposeErrorDetail {
			resp["stack"] = errorChain(err)
		}
		s.respondJSON(w, http.StatusInternalServerError, resp)
	}
}

// errorChain renders err followed by every wrapped cause, one per line.
func errorChain(err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%+v", err)
	var walk func(e error, depth int)
	walk = func(e error, depth int) {
		var causes []error
		switch u := e.(type) {
		case interface{ Unwrap() error }:
			if c := u.Unwrap(); c != nil {
				causes = []error{c}
			}
		case interface{ Unwrap() []error }:
			causes = u.Unwrap()
		}
		for _, c := range causes {
			b.WriteString("\n")
			b.WriteString(strings.Repeat("\t", depth))
			b.WriteString("caused by: ")
			b.WriteString(c.Error())
			walk(c, depth+1)
		}
	}
	walk(err, 1)
	return b.String()
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
