package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/skillvault/internal/evolution"
	"github.com/nidhogg/skillvault/internal/library"
	"github.com/nidhogg/skillvault/internal/retrieval"
	"github.com/nidhogg/skillvault/internal/skill"
	"go.uber.org/zap"
)

// Handler exposes the skill service over HTTP for the orchestrating
// agent.
type Handler struct {
	svc    *library.Service
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc *library.Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Route("/skills", func(r chi.Router) {
			r.Get("/", h.listSkills)
			r.Post("/", h.registerSkill)
			r.Post("/create", h.createSkill)
			r.Get("/search", h.searchSkills)
			r.Post("/query", h.querySkills)
			r.Post("/select", h.selectSkills)
			r.Post("/prompt", h.formatPrompt)
			r.Get("/stats", h.getStats)
			r.Post("/embeddings", h.populateEmbeddings)
			r.Post("/stats/batch", h.batchUpdateStats)
			r.Get("/performance", h.getByPerformance)

			r.Get("/{id}", h.getSkill)
			r.Put("/{id}", h.updateSkill)
			r.Delete("/{id}", h.archiveSkill)
			r.Post("/{id}/usage", h.recordUsage)
			r.Post("/{id}/stats", h.updateSkillStats)
		})

		r.Route("/evolution", func(r chi.Router) {
			r.Post("/run", h.evolveLibrary)
			r.Post("/promote", h.promoteSkills)
			r.Post("/demote", h.demoteSkills)
			r.Post("/prune", h.pruneSkills)
			r.Get("/report", h.evolutionReport)
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.GetStats(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"skills": count.TotalSkills,
	})
}

func (h *Handler) registerSkill(w http.ResponseWriter, r *http.Request) {
	var s skill.Skill
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := h.svc.RegisterSkill(r.Context(), &s)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, out)
}

type createRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Code        string         `json:"code"`
	Category    skill.Category `json:"category"`
	Options     skill.Options  `json:"options"`
}

func (h *Handler) createSkill(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	s, err := h.svc.CreateSkill(r.Context(), req.Name, req.Description, req.Code, req.Category, req.Options)
	if err != nil {
		if errors.Is(err, skill.ErrExists) {
			h.writeError(w, http.StatusConflict, err)
			return
		}
		if errors.Is(err, skill.ErrInvalid) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) getSkill(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.GetSkill(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s == nil {
		h.writeError(w, http.StatusNotFound, skill.ErrNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

func (h *Handler) listSkills(w http.ResponseWriter, r *http.Request) {
	f := filterFromQuery(r)
	skills, err := h.svc.ListSkills(r.Context(), f)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"skills": skills, "count": len(skills)})
}

func (h *Handler) updateSkill(w http.ResponseWriter, r *http.Request) {
	var s skill.Skill
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.ID = chi.URLParam(r, "id")
	if err := h.svc.UpdateSkill(r.Context(), &s); err != nil {
		if errors.Is(err, skill.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &s)
}

func (h *Handler) archiveSkill(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ArchiveSkill(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, skill.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (h *Handler) searchSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := h.svc.SearchSkills(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"skills": skills, "count": len(skills)})
}

type queryRequest struct {
	Text          string        `json:"text"`
	TopK          int           `json:"top_k"`
	MinSimilarity float64       `json:"min_similarity"`
	Filter        *skill.Filter `json:"filter"`
}

func (q queryRequest) options() retrieval.QueryOptions {
	return retrieval.QueryOptions{
		Filter:        q.Filter,
		TopK:          q.TopK,
		MinSimilarity: q.MinSimilarity,
	}
}

func (h *Handler) querySkills(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	matches, err := h.svc.Query(r.Context(), req.Text, req.options())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "count": len(matches)})
}

func (h *Handler) selectSkills(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	skills, err := h.svc.SelectSkills(r.Context(), req.Text, req.options())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"skills": skills, "count": len(skills)})
}

func (h *Handler) formatPrompt(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	prompt, err := h.svc.FormatForPrompt(r.Context(), req.Text, req.options())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"prompt": prompt})
}

type usageRequest struct {
	Success bool `json:"success"`
}

func (h *Handler) recordUsage(w http.ResponseWriter, r *http.Request) {
	var req usageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.RecordUsage(r.Context(), chi.URLParam(r, "id"), req.Success); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *Handler) updateSkillStats(w http.ResponseWriter, r *http.Request) {
	var req usageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	s, err := h.svc.UpdateSkillStats(r.Context(), chi.URLParam(r, "id"), req.Success)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s == nil {
		h.writeError(w, http.StatusNotFound, skill.ErrNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

func (h *Handler) batchUpdateStats(w http.ResponseWriter, r *http.Request) {
	var updates []evolution.StatUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := h.svc.BatchUpdateStats(r.Context(), updates)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetStats(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) populateEmbeddings(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.PopulateEmbeddings(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"populated": n})
}

func (h *Handler) getByPerformance(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ascending := r.URL.Query().Get("order") == "asc"
	skills, err := h.svc.GetByPerformance(r.Context(), limit, ascending)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"skills": skills, "count": len(skills)})
}

func (h *Handler) evolveLibrary(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.EvolveLibrary(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) promoteSkills(w http.ResponseWriter, r *http.Request) {
	h.writeActions(w, r, h.svc.PromoteSkills)
}

func (h *Handler) demoteSkills(w http.ResponseWriter, r *http.Request) {
	h.writeActions(w, r, h.svc.DemoteSkills)
}

func (h *Handler) pruneSkills(w http.ResponseWriter, r *http.Request) {
	h.writeActions(w, r, h.svc.PruneSkills)
}

func (h *Handler) writeActions(w http.ResponseWriter, r *http.Request, run func(ctx context.Context) ([]evolution.Action, error)) {
	actions, err := run(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if actions == nil {
		actions = []evolution.Action{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"actions": actions, "count": len(actions)})
}

func (h *Handler) evolutionReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.GetEvolutionReport(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func filterFromQuery(r *http.Request) *skill.Filter {
	q := r.URL.Query()
	f := &skill.Filter{}
	empty := true
	for _, c := range q["category"] {
		f.Categories = append(f.Categories, skill.Category(c))
		empty = false
	}
	for _, s := range q["status"] {
		f.Status = append(f.Status, skill.Status(s))
		empty = false
	}
	for _, t := range q["tag"] {
		f.Tags = append(f.Tags, t)
		empty = false
	}
	for _, l := range q["language"] {
		f.Languages = append(f.Languages, l)
		empty = false
	}
	for _, fw := range q["framework"] {
		f.Frameworks = append(f.Frameworks, fw)
		empty = false
	}
	if v := q.Get("min_success_rate"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinSuccessRate = &rate
			empty = false
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.MaxResults = n
			empty = false
		}
	}
	if empty {
		return nil
	}
	return f
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
