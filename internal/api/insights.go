// CLAUDE:SUMMARY Insight HTTP surface — analytics rollup, insight generation, score refresh, data-grounded Q&A
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/har5h1l/wellnessgrid/internal/db"
	"github.com/har5h1l/wellnessgrid/internal/insights"
)

func (a *API) RegisterInsightRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/analytics", a.handleGetAnalytics)
	mux.HandleFunc("GET /api/insights", a.handleListInsights)
	mux.HandleFunc("POST /api/insights/generate", a.handleGenerateInsight)
	mux.HandleFunc("POST /api/score/refresh", a.handleRefreshScore)
	mux.HandleFunc("GET /api/score", a.handleGetScore)
	mux.HandleFunc("POST /api/ask", RateLimitMiddleware(AskRateLimiter, a.handleAsk))
}

func (a *API) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	opts := insights.AnalyticsOptions{
		IncludeInsights: queryBool(q.Get("include_insights"), true),
		Cached:          queryBool(q.Get("cached"), true),
		ForceRefresh:    queryBool(q.Get("force_refresh"), false),
	}

	payload, err := a.service.GetAnalytics(r.Context(), claims.UserID, q.Get("window"), opts)
	if err != nil {
		var tooFreq *insights.TooFrequentError
		if errors.As(err, &tooFreq) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(tooFreq.RetryAfter.Seconds())+1))
			jsonError(w, tooFreq.Error(), http.StatusTooManyRequests)
			return
		}
		slog.Error("building analytics", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, payload)
}

// queryBool parses a boolean query parameter, falling back to def when the
// parameter is absent or malformed.
func queryBool(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func (a *API) handleListInsights(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	list, err := a.db.ListInsights(claims.UserID, 20)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []db.Insight{}
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"insights": list,
		"count":    len(list),
	})
}

func (a *API) handleGenerateInsight(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		Type      string `json:"type"`
		Forced    bool   `json:"forced"`
		Scheduled bool   `json:"scheduled"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	insight, ageMin, reused, err := a.service.GenerateInsight(r.Context(), insights.GenerateRequest{
		UserID:    claims.UserID,
		Type:      req.Type,
		Forced:    req.Forced,
		Scheduled: req.Scheduled,
	})
	if err != nil {
		var tooFreq *insights.TooFrequentError
		if errors.As(err, &tooFreq) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(tooFreq.RetryAfter.Seconds())+1))
			jsonError(w, tooFreq.Error(), http.StatusTooManyRequests)
			return
		}
		slog.Error("generating insight", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if reused {
		status = http.StatusOK
	}
	jsonResp(w, status, map[string]interface{}{
		"insight":     insight,
		"reused":      reused,
		"age_minutes": ageMin,
	})
}

func (a *API) handleRefreshScore(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		Period string `json:"period"`
		Forced bool   `json:"forced"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	score, err := a.service.RefreshWellnessScore(r.Context(), claims.UserID, req.Period, req.Forced)
	if err != nil {
		var tooFreq *insights.TooFrequentError
		if errors.As(err, &tooFreq) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(tooFreq.RetryAfter.Seconds())+1))
			jsonError(w, tooFreq.Error(), http.StatusTooManyRequests)
			return
		}
		slog.Error("refreshing score", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, score)
}

func (a *API) handleGetScore(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "weekly"
	}
	score, err := a.db.GetWellnessScore(claims.UserID, period)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if score == nil {
		jsonError(w, "no score calculated yet", http.StatusNotFound)
		return
	}
	jsonResp(w, http.StatusOK, score)
}

func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if strings.Contains(err.Error(), "too large") {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	}

	answer, provider, err := a.service.AnswerQuestion(r.Context(), claims.UserID, req.Question)
	if err != nil {
		slog.Error("answering question", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"answer":   answer,
		"provider": provider,
	})
}
