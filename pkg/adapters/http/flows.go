package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flows"
	"github.com/go-chi/chi/v5"
)

func listQuery(r *http.Request) (flows.ListQuery, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return flows.ListQuery{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return flows.ListQuery{}, err
	}
	v := r.URL.Query()
	q := flows.ListQuery{
		Page:      page,
		Limit:     limit,
		Search:    v.Get("search"),
		Status:    domain.FlowStatus(v.Get("status")),
		SortBy:    v.Get("sortBy"),
		SortOrder: v.Get("sortOrder"),
	}
	if tags := v.Get("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				q.Tags = append(q.Tags, t)
			}
		}
	}
	return q, nil
}

func (s *Server) ListFlows(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.Flows.List(r.Context(), userID(r), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) ListTemplates(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.Flows.Templates(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var in flows.CreateInput
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		s.writeError(w, r, fmt.Errorf("%w: name is required", errBadRequest))
		return
	}
	flow, err := s.Flows.Create(r.Context(), userID(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, flow)
}

func (s *Server) FlowStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Flows.Stats(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := s.Flows.Get(r.Context(), userID(r), chi.URLParam(r, "flowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) UpdateFlow(w http.ResponseWriter, r *http.Request) {
	var in flows.UpdateInput
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	flow, err := s.Flows.Update(r.Context(), userID(r), chi.URLParam(r, "flowID"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.Flows.Delete(r.Context(), userID(r), chi.URLParam(r, "flowID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) DuplicateFlow(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		s.writeError(w, r, fmt.Errorf("%w: name is required", errBadRequest))
		return
	}
	flow, err := s.Flows.Duplicate(r.Context(), userID(r), chi.URLParam(r, "flowID"), in.Name, in.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, flow)
}

func (s *Server) ActivateFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := s.Flows.Activate(r.Context(), userID(r), chi.URLParam(r, "flowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) DeactivateFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := s.Flows.Deactivate(r.Context(), userID(r), chi.URLParam(r, "flowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) ValidateFlow(w http.ResponseWriter, r *http.Request) {
	res, err := s.Flows.Validate(r.Context(), userID(r), chi.URLParam(r, "flowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) ExportFlow(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Flows.Export(r.Context(), userID(r), chi.URLParam(r, "flowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) ImportFlow(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FlowData *flows.Document `json:"flowData"`
		Name     string          `json:"name"`
	}
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	flow, err := s.Flows.Import(r.Context(), userID(r), in.FlowData, in.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, flow)
}

func (s *Server) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.Flows.ListVersions(r.Context(), userID(r), chi.URLParam(r, "flowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) CreateVersion(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ChangeDescription string `json:"changeDescription"`
	}
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.Flows.CreateVersion(r.Context(), userID(r), chi.URLParam(r, "flowID"), in.ChangeDescription, domain.ChangeManual)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func versionParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: version must be a positive integer", errBadRequest)
	}
	return n, nil
}

func (s *Server) GetVersion(w http.ResponseWriter, r *http.Request) {
	n, err := versionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.Flows.GetVersion(r.Context(), userID(r), chi.URLParam(r, "flowID"), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	n, err := versionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	flow, err := s.Flows.RestoreVersion(r.Context(), userID(r), chi.URLParam(r, "flowID"), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}
