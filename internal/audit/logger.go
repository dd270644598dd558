package audit

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Actions recorded by the authorization server.
const (
	ActionLogin             = "login"
	ActionLogout            = "logout"
	ActionAuthorize         = "authorize"
	ActionTokenExchange     = "token_exchange"
	ActionCodeReplay        = "code_replay"
	ActionClientMismatch    = "client_mismatch"
	ActionRedirectMismatch  = "redirect_uri_mismatch"
	ActionPKCEFailure       = "pkce_failure"
	ActionInactiveUserToken = "inactive_user_token"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Action    string    `json:"action"`
	User      string    `json:"user,omitempty"`    // User ID or identifier
	Target    string    `json:"target,omitempty"`  // Client ID or code prefix
	Details   string    `json:"details,omitempty"` // Additional details
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"` // Error message if the action failed
}

var (
	mu          sync.RWMutex
	auditLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// SetOutput redirects audit events, typically to a dedicated file or a test buffer.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	auditLogger = zerolog.New(w).With().Timestamp().Logger()
}

// Log records an audit event.
func Log(service, action, user, target, details string, success bool, err error) {
	event := Event{
		Timestamp: time.Now().UTC(),
		Service:   service,
		Action:    action,
		User:      user,
		Target:    target,
		Details:   details,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}

	mu.RLock()
	defer mu.RUnlock()

	auditLogger.Log().Interface("audit_event", event).Msg("")
}

// CodePrefix shortens an authorization code for logging. The full value is
// a bearer secret until it is redeemed.
func CodePrefix(code string) string {
	const keep = 8
	if len(code) <= keep {
		return code
	}

	return code[:keep] + "..."
}
