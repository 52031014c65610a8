package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/traceline/internal/planfile"
	"github.com/leapstack-labs/traceline/internal/state"
	"github.com/leapstack-labs/traceline/pkg/catalog"
	"github.com/leapstack-labs/traceline/pkg/lineage"
)

const maxDocumentBytes = 4 << 20

type extractionResult struct {
	ID      string           `json:"id,omitempty"`
	Name    string           `json:"name"`
	Lineage *lineage.Lineage `json:"lineage"`
}

type extractionResponse struct {
	Results []extractionResult `json:"results"`
}

type statementSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Sources   []string  `json:"sources"`
	Targets   []string  `json:"targets"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLineage decodes a plan document from the request body, extracts
// lineage for every plan in it, and optionally saves the records.
// Query parameters: save=1 persists (requires a state store), strict=1
// turns unsupported operators into errors.
func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read body: " + err.Error()})
		return
	}

	doc, err := planfile.Decode(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	save := boolParam(r, "save")
	if save && s.store == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no state store configured"})
		return
	}

	opts := lineage.Options{
		Logger: s.logger,
		Strict: boolParam(r, "strict"),
	}
	// The request document's own definitions shadow the server catalog.
	cats := catalog.Chain{}
	caches := catalog.CacheChain{}
	cats = append(cats, doc.Catalog)
	caches = append(caches, doc.Catalog)
	if base := s.currentCatalog(); base != nil {
		cats = append(cats, base)
		caches = append(caches, base)
	}
	opts.Catalog = cats
	opts.Caches = caches

	results := make([]extractionResult, 0, len(doc.Plans))
	for i, p := range doc.Plans {
		lin, err := lineage.ExtractWithOptions(p.Root, opts)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error: "plans[" + strconv.Itoa(i) + "]: " + err.Error(),
			})
			return
		}
		name := p.Name
		if name == "" {
			name = "plans[" + strconv.Itoa(i) + "]"
		}
		result := extractionResult{Name: name, Lineage: lin}
		if save {
			rec, err := s.store.SaveLineage(r.Context(), name, lin)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
				return
			}
			result.ID = rec.ID
		}
		results = append(results, result)
	}
	writeJSON(w, http.StatusOK, extractionResponse{Results: results})
}

func (s *Server) handleListStatements(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no state store configured"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := s.store.ListRecords(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	out := make([]statementSummary, 0, len(recs))
	for _, rec := range recs {
		sum := statementSummary{
			ID:        rec.ID,
			Name:      rec.Name,
			CreatedAt: rec.CreatedAt,
			Sources:   []string{},
			Targets:   []string{},
		}
		for _, src := range rec.Lineage.Sources {
			sum.Sources = append(sum.Sources, src.String())
		}
		for _, tgt := range rec.Lineage.Targets {
			sum.Targets = append(sum.Targets, tgt.String())
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, map[string]any{"statements": out})
}

func (s *Server) handleGetStatement(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no state store configured"})
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := s.store.GetRecord(r.Context(), id)
	if errors.Is(err, state.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, extractionResult{ID: rec.ID, Name: rec.Name, Lineage: rec.Lineage})
}

func (s *Server) handleDeleteStatement(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no state store configured"})
		return
	}
	id := chi.URLParam(r, "id")
	err := s.store.DeleteRecord(r.Context(), id)
	if errors.Is(err, state.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func boolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
