package scrapers

import (
	"context"
	"fmt"
)

// Result is the normalized outcome every scraper action reduces to.
// Whatever a vendor console returns, callers only ever see this shape.
type Result struct {
	Status  string         `json:"status"` // success or error
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// OK builds a success result
func OK(message string, data map[string]any) Result {
	return Result{Status: "success", Message: message, Data: data}
}

// Errf builds an error result
func Errf(format string, args ...any) Result {
	return Result{Status: "error", Message: fmt.Sprintf(format, args...)}
}

// IsSuccess reports whether the action went through
func (r Result) IsSuccess() bool {
	return r.Status == "success"
}

// Scraper drives one vendor console. Implementations authenticate lazily on
// the first operation and hold whatever session state the vendor needs
// (token, cookie, unwrapped signing secret) for the lifetime of the instance.
type Scraper interface {
	// Site returns the game name this instance is bound to
	Site() string

	// AgentBalance reports the operator account's available credit
	AgentBalance(ctx context.Context) Result

	// PlayerSignup creates a player account. When requestedUsername is
	// empty a username is generated from fullname. The password is set to
	// the username; both are returned in Result.Data.
	PlayerSignup(ctx context.Context, fullname, requestedUsername string) Result

	// Recharge moves credit from the agent account to a player
	Recharge(ctx context.Context, username string, amount float64) Result

	// Redeem moves credit from a player back to the agent account
	Redeem(ctx context.Context, username string, amount float64) Result

	// Close releases the session
	Close() error
}

// Canonical action names plus the aliases the Telegram side uses
const (
	ActionAgentBalance = "agent_balance"
	ActionSignup       = "signup"
	ActionRecharge     = "recharge"
	ActionRedeem       = "redeem"
)

// NormalizeAction maps an action alias to its canonical name.
// Returns an empty string for unknown actions.
func NormalizeAction(action string) string {
	switch action {
	case ActionAgentBalance, "balance":
		return ActionAgentBalance
	case ActionSignup, "create_user":
		return ActionSignup
	case ActionRecharge, "deposit":
		return ActionRecharge
	case ActionRedeem, "withdraw", "withdrawal":
		return ActionRedeem
	default:
		return ""
	}
}
