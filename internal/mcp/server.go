// Package mcp registers the core wellnessgrid tools on an MCP server.
// These tools are accessible to any MCP client connecting over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/har5h1l/wellnessgrid/internal/db"
	"github.com/har5h1l/wellnessgrid/internal/insights"
	"github.com/har5h1l/wellnessgrid/pkg/audit"
)

// NewServer creates an MCPServer with all core wellnessgrid tools registered.
func NewServer(database *db.DB, service *insights.Service, auditLog audit.Logger) *server.MCPServer {
	srv := server.NewMCPServer(
		"wellnessgrid",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	registerLogEvent(srv, database, service, auditLog)
	registerGetAnalytics(srv, service)
	registerGenerateInsight(srv, service, auditLog)
	registerRefreshScore(srv, service, auditLog)
	registerAskQuestion(srv, service)

	return srv
}

// registerTool bridges an audit.Endpoint onto the MCP server: decode the
// call arguments, run the endpoint, return the result as JSON text.
func registerTool(srv *server.MCPServer, tool mcp.Tool, endpoint audit.Endpoint, decode func(mcp.CallToolRequest) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		request, err := decode(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ctx = audit.WithTransport(ctx, "mcp")
		resp, err := endpoint(ctx, request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	})
}

// --- log_event ---

func registerLogEvent(srv *server.MCPServer, database *db.DB, service *insights.Service, auditLog audit.Logger) {
	var endpoint audit.Endpoint = func(ctx context.Context, request any) (any, error) {
		r := request.(*logEventReq)
		if !insights.ValidDomain(r.DomainID) {
			return nil, fmt.Errorf("invalid domain_id %q", r.DomainID)
		}
		in := db.CreateEventInput{
			UserID:   r.UserID,
			DomainID: r.DomainID,
			Payload:  r.Payload,
		}
		if r.Timestamp != "" {
			ts, err := time.Parse(time.RFC3339, r.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp: %w", err)
			}
			in.Timestamp = ts
		}
		ev, err := database.InsertEvent(in)
		if err != nil {
			return nil, err
		}
		service.NoteNewEvent(r.UserID)
		return ev, nil
	}
	if auditLog != nil {
		endpoint = audit.Middleware(auditLog, "log_event")(endpoint)
	}

	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":   map[string]string{"type": "string", "description": "User ID"},
			"domain_id": map[string]string{"type": "string", "description": "One of: glucose, mood, sleep, exercise, medication, symptom"},
			"payload":   map[string]any{"type": "object", "description": "Domain-specific measurements, e.g. {\"level\": 120} for glucose"},
			"timestamp": map[string]string{"type": "string", "description": "RFC3339 timestamp, defaults to now"},
		},
		"required": []string{"user_id", "domain_id", "payload"},
	})
	tool := mcp.NewToolWithRawSchema("log_event", "Record a health tracking event", schema)

	registerTool(srv, tool, endpoint, func(req mcp.CallToolRequest) (any, error) {
		args := req.GetArguments()
		r := &logEventReq{
			UserID:    stringArg(args, "user_id"),
			DomainID:  stringArg(args, "domain_id"),
			Timestamp: stringArg(args, "timestamp"),
		}
		if p, ok := args["payload"].(map[string]any); ok {
			r.Payload = p
		}
		return r, nil
	})
}

type logEventReq struct {
	UserID    string         `json:"user_id"`
	DomainID  string         `json:"domain_id"`
	Payload   map[string]any `json:"payload"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// --- get_analytics ---

func registerGetAnalytics(srv *server.MCPServer, service *insights.Service) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":          map[string]string{"type": "string", "description": "User ID"},
			"window":           map[string]string{"type": "string", "description": "One of: today, 7d, 30d, all", "default": "7d"},
			"include_insights": map[string]any{"type": "boolean", "description": "Attach recent stored insights", "default": true},
			"cached":           map[string]any{"type": "boolean", "description": "Allow a cached payload", "default": true},
			"force_refresh":    map[string]any{"type": "boolean", "description": "Bypass cache and dedup", "default": false},
		},
		"required": []string{"user_id"},
	})
	tool := mcp.NewToolWithRawSchema("get_analytics", "Get per-domain trends, correlations, streaks and the current wellness score", schema)

	registerTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		r := request.(*analyticsReq)
		return service.GetAnalytics(ctx, r.UserID, r.Window, r.Options)
	}, func(req mcp.CallToolRequest) (any, error) {
		args := req.GetArguments()
		return &analyticsReq{
			UserID: stringArg(args, "user_id"),
			Window: stringArg(args, "window"),
			Options: insights.AnalyticsOptions{
				IncludeInsights: boolArgDefault(args, "include_insights", true),
				Cached:          boolArgDefault(args, "cached", true),
				ForceRefresh:    boolArg(args, "force_refresh"),
			},
		}, nil
	})
}

type analyticsReq struct {
	UserID  string `json:"user_id"`
	Window  string `json:"window"`
	Options insights.AnalyticsOptions
}

// --- generate_insight ---

func registerGenerateInsight(srv *server.MCPServer, service *insights.Service, auditLog audit.Logger) {
	var endpoint audit.Endpoint = func(ctx context.Context, request any) (any, error) {
		r := request.(*generateInsightReq)
		insight, ageMin, reused, err := service.GenerateInsight(ctx, insights.GenerateRequest{
			UserID:    r.UserID,
			Type:      r.Type,
			Forced:    r.Forced,
			Scheduled: r.Scheduled,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"insight": insight, "reused": reused, "age_minutes": ageMin}, nil
	}
	if auditLog != nil {
		endpoint = audit.Middleware(auditLog, "generate_insight")(endpoint)
	}

	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":   map[string]string{"type": "string", "description": "User ID"},
			"type":      map[string]string{"type": "string", "description": "One of: general, daily_digest, weekly_review", "default": "general"},
			"forced":    map[string]any{"type": "boolean", "description": "Bypass freshness and dedup", "default": false},
			"scheduled": map[string]any{"type": "boolean", "description": "Scheduled run: tolerate older insights", "default": false},
		},
		"required": []string{"user_id"},
	})
	tool := mcp.NewToolWithRawSchema("generate_insight", "Generate or reuse a health insight for a user", schema)

	registerTool(srv, tool, endpoint, func(req mcp.CallToolRequest) (any, error) {
		args := req.GetArguments()
		return &generateInsightReq{
			UserID:    stringArg(args, "user_id"),
			Type:      stringArg(args, "type"),
			Forced:    boolArg(args, "forced"),
			Scheduled: boolArg(args, "scheduled"),
		}, nil
	})
}

type generateInsightReq struct {
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	Forced    bool   `json:"forced"`
	Scheduled bool   `json:"scheduled"`
}

// --- refresh_wellness_score ---

func registerRefreshScore(srv *server.MCPServer, service *insights.Service, auditLog audit.Logger) {
	var endpoint audit.Endpoint = func(ctx context.Context, request any) (any, error) {
		r := request.(*refreshScoreReq)
		return service.RefreshWellnessScore(ctx, r.UserID, r.Period, r.Forced)
	}
	if auditLog != nil {
		endpoint = audit.Middleware(auditLog, "refresh_wellness_score")(endpoint)
	}

	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]string{"type": "string", "description": "User ID"},
			"period":  map[string]string{"type": "string", "description": "Score period", "default": "weekly"},
			"forced":  map[string]any{"type": "boolean", "description": "Bypass dedup", "default": false},
		},
		"required": []string{"user_id"},
	})
	tool := mcp.NewToolWithRawSchema("refresh_wellness_score", "Recalculate and persist a user's wellness score", schema)

	registerTool(srv, tool, endpoint, func(req mcp.CallToolRequest) (any, error) {
		args := req.GetArguments()
		return &refreshScoreReq{
			UserID: stringArg(args, "user_id"),
			Period: stringArg(args, "period"),
			Forced: boolArg(args, "forced"),
		}, nil
	})
}

type refreshScoreReq struct {
	UserID string `json:"user_id"`
	Period string `json:"period"`
	Forced bool   `json:"forced"`
}

// --- ask_question ---

func registerAskQuestion(srv *server.MCPServer, service *insights.Service) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":  map[string]string{"type": "string", "description": "User ID"},
			"question": map[string]string{"type": "string", "description": "Free-form health question"},
		},
		"required": []string{"user_id", "question"},
	})
	tool := mcp.NewToolWithRawSchema("ask_question", "Answer a health question grounded in the user's tracked data", schema)

	registerTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		r := request.(*askQuestionReq)
		answer, provider, err := service.AnswerQuestion(ctx, r.UserID, r.Question)
		if err != nil {
			return nil, err
		}
		return map[string]any{"answer": answer, "provider": provider}, nil
	}, func(req mcp.CallToolRequest) (any, error) {
		args := req.GetArguments()
		return &askQuestionReq{
			UserID:   stringArg(args, "user_id"),
			Question: stringArg(args, "question"),
		}, nil
	})
}

type askQuestionReq struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
}

// --- helpers ---

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func boolArgDefault(args map[string]any, key string, def bool) bool {
	v, ok := args[key].(bool)
	if !ok {
		return def
	}
	return v
}
