package server

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/custodia-labs/formsync/internal/adapters/driven/transport/wire"
	"github.com/custodia-labs/formsync/internal/core/domain"
)

// maxBodyBytes caps REST request bodies.
const maxBodyBytes = 1 << 20

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ports.Documents.List(r.Context(), identityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]wire.DocumentAccess, 0, len(docs))
	for _, d := range docs {
		out = append(out, wire.FromAccess(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	doc, err := s.ports.Documents.Create(r.Context(), identityFrom(r.Context()), domain.DocumentKind(req.Kind), req.FormID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wire.FromDocument(*doc))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	access, err := s.ports.Documents.Get(r.Context(), identityFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromAccess(*access))
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var req wire.PatchRequest
	if !decodeBody(w, r, &req) {
		s.metrics.patches.WithLabelValues("invalid").Inc()
		return
	}
	version, err := s.ports.Documents.ApplyChanges(
		r.Context(),
		identityFrom(r.Context()),
		mux.Vars(r)["id"],
		req.Changes,
		r.Header.Get(wire.ClientIDHeader),
	)
	if err != nil {
		s.metrics.patches.WithLabelValues("error").Inc()
		writeError(w, r, err)
		return
	}
	s.metrics.patches.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, wire.PatchResponse{Version: version})
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req wire.GrantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tier, err := domain.ParsePermissionTier(req.Permission)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	if err := s.ports.Documents.Grant(r.Context(), identityFrom(r.Context()), vars["id"], vars["user"], tier); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, wire.Error{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}
