// CLAUDE:SUMMARY Core API struct and shared HTTP handlers — auth, event logging, profile, conditions, status
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/har5h1l/wellnessgrid/internal/auth"
	"github.com/har5h1l/wellnessgrid/internal/db"
	"github.com/har5h1l/wellnessgrid/internal/insights"
	"github.com/har5h1l/wellnessgrid/internal/llm"
)

// maxBodySize is the maximum HTTP body size for write endpoints.
const maxBodySize = 64 * 1024 // 64KB

// AskRateLimiter is the rate limiter for POST /api/ask (20 req/60s).
var AskRateLimiter = NewRateLimiter(20, 60*time.Second)

type API struct {
	db        *db.DB
	metricsDB *db.MetricsDB
	auth      *auth.Auth
	service   *insights.Service
	llmClient *llm.Client
	startedAt time.Time
}

func New(database *db.DB, a *auth.Auth, service *insights.Service) *API {
	return &API{db: database, auth: a, service: service, startedAt: time.Now()}
}

// SetMetricsDB sets the metrics database for request recording.
func (a *API) SetMetricsDB(mdb *db.MetricsDB) {
	a.metricsDB = mdb
}

// SetLLMClient sets the LLM client for the status endpoint.
func (a *API) SetLLMClient(c *llm.Client) {
	a.llmClient = c
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	// Auth
	mux.HandleFunc("POST /api/register", a.handleRegister)
	mux.HandleFunc("POST /api/login", a.handleLogin)

	// Tracking events
	mux.HandleFunc("POST /api/events", a.handleLogEvent)
	mux.HandleFunc("GET /api/events", a.handleGetEvents)

	// Profile & conditions
	mux.HandleFunc("GET /api/profile", a.handleGetProfile)
	mux.HandleFunc("PUT /api/profile", a.handleUpdateProfile)
	mux.HandleFunc("POST /api/conditions", a.handleAddCondition)

	// Insights & analytics
	a.RegisterInsightRoutes(mux)

	// Status
	mux.HandleFunc("GET /api/status", a.handleStatus)
}

// --- Auth ---

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		jsonError(w, "email and password are required", http.StatusBadRequest)
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		jsonError(w, "invalid email address", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 8 {
		jsonError(w, "password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	hash, err := a.auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	user, err := a.db.CreateUser(strings.ToLower(req.Email), hash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			jsonError(w, "email already registered", http.StatusConflict)
			return
		}
		slog.Error("creating user", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	token, err := a.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	jsonResp(w, http.StatusCreated, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := a.db.GetUserByEmail(strings.ToLower(req.Email))
	if err != nil || user == nil {
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if !a.auth.CheckPassword(user.PasswordHash, req.Password) {
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := a.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	a.db.TouchLastSeen(user.ID)

	jsonResp(w, http.StatusOK, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

// --- Tracking events ---

func (a *API) handleLogEvent(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req struct {
		DomainID  string         `json:"domain_id"`
		Payload   map[string]any `json:"payload"`
		Timestamp *time.Time     `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if strings.Contains(err.Error(), "too large") {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DomainID == "" {
		jsonError(w, "domain_id is required", http.StatusBadRequest)
		return
	}
	if !insights.ValidDomain(req.DomainID) {
		jsonError(w, "invalid domain_id", http.StatusBadRequest)
		return
	}

	in := db.CreateEventInput{
		UserID:   claims.UserID,
		DomainID: req.DomainID,
		Payload:  req.Payload,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}

	ev, err := a.db.InsertEvent(in)
	if err != nil {
		slog.Error("inserting event", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	a.service.NoteNewEvent(claims.UserID)

	jsonResp(w, http.StatusCreated, ev)
}

func (a *API) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	domainID := r.URL.Query().Get("domain_id")
	if domainID == "" {
		jsonError(w, "domain_id is required", http.StatusBadRequest)
		return
	}
	window := insights.WindowForLabel(r.URL.Query().Get("window"))

	events, err := a.db.QueryEvents(claims.UserID, domainID, window.Since(time.Now()))
	if err != nil {
		slog.Error("querying events", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []db.TrackingEvent{}
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"window": window.Label,
	})
}

// --- Profile ---

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	profile, err := a.db.GetProfile(claims.UserID)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if profile == nil {
		profile = &db.HealthProfile{UserID: claims.UserID, Goals: []string{}}
	}
	conditions, err := a.db.GetConditions(claims.UserID)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if conditions == nil {
		conditions = []db.Condition{}
	}

	jsonResp(w, http.StatusOK, map[string]interface{}{
		"profile":    profile,
		"conditions": conditions,
	})
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		Age   *int     `json:"age"`
		Goals []string `json:"goals"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Age != nil && (*req.Age < 0 || *req.Age > 130) {
		jsonError(w, "age out of range", http.StatusBadRequest)
		return
	}

	profile := &db.HealthProfile{
		UserID: claims.UserID,
		Age:    req.Age,
		Goals:  req.Goals,
	}
	if err := a.db.UpsertProfile(profile); err != nil {
		slog.Error("updating profile", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	jsonResp(w, http.StatusOK, profile)
}

func (a *API) handleAddCondition(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, "name is required", http.StatusBadRequest)
		return
	}

	condition, err := a.db.AddCondition(claims.UserID, req.Name)
	if err != nil {
		slog.Error("adding condition", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	jsonResp(w, http.StatusCreated, condition)
}

// --- Status ---

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	providers := []string{}
	if a.llmClient != nil {
		providers = a.llmClient.Providers()
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime_s":  int(time.Since(a.startedAt).Seconds()),
		"providers": providers,
	})
}

// --- Helpers ---

func jsonResp(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
