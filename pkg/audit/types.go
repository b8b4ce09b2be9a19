package audit

import "context"

// Entry records a single action for the audit trail.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"`
	Action     string `json:"action"`
	Transport  string `json:"transport"` // "http" or "mcp"
	UserID     string `json:"user_id"`
	RequestID  string `json:"request_id"`
	Parameters string `json:"parameters"`
	Result     string `json:"result"`
	Error      string `json:"error_message"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"` // "success" or "error"
}

// Logger writes audit entries to storage.
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	LogAsync(entry *Entry)
	Close() error
}

// Endpoint is a generic request handler wrapped by Middleware.
type Endpoint func(ctx context.Context, request any) (any, error)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxRequestID
	ctxTransport
)

// WithUserID attaches the acting user to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRequestID attaches the request identifier to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestID, requestID)
}

// WithTransport attaches the transport name ("http", "mcp") to the context.
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, ctxTransport, transport)
}

func userID(ctx context.Context) string    { s, _ := ctx.Value(ctxUserID).(string); return s }
func requestID(ctx context.Context) string { s, _ := ctx.Value(ctxRequestID).(string); return s }
func transport(ctx context.Context) string { s, _ := ctx.Value(ctxTransport).(string); return s }
