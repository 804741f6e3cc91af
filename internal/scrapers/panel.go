package scrapers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Panel family endpoints. Requests are JSON POSTs authorized by a bearer
// token plus the session cookie.
const (
	panelLoginPath    = "/api/agent/login"
	panelBalancePath  = "/api/agent/balance"
	panelUserListPath = "/api/user/userList"
	panelRechargePath = "/api/user/rechargeRedeem"
	panelAddUserPath  = "/api/user/addUser"
)

const (
	panelOpRecharge = 1
	panelOpRedeem   = 2
)

// Some panels answer a refused transfer with code 200 and only this message
// marks the failure.
const panelBalanceLimitMsg = "The balance is not below the limit"

var errPanelUnauthorized = errors.New("panel session expired")

// PanelClient talks to the JSON admin panel family. A pre-issued token from
// the site config is used as is; otherwise the client logs in directly and
// keeps the returned token and cookie for the session.
type PanelClient struct {
	site   Site
	http   *http.Client
	logger *zap.Logger

	token  string
	cookie string
}

// NewPanelClient creates a client for a panel family site.
func NewPanelClient(site Site, client *http.Client, logger *zap.Logger) *PanelClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PanelClient{site: site, http: client, logger: logger}
}

func (c *PanelClient) Site() string { return c.site.Name }

func (c *PanelClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// AgentBalance reports the agent account's available credit.
func (c *PanelClient) AgentBalance(ctx context.Context) Result {
	resp, err := c.call(ctx, panelBalancePath, map[string]any{})
	if err != nil {
		return Errf("%v", err)
	}
	if resp.Code != 200 {
		return Errf("Failed to fetch balance: %s", resp.message())
	}
	balance, ok := panelBalance(resp.Data)
	if !ok {
		return Errf("Failed to fetch balance: no balance in response")
	}
	return OK("Success", map[string]any{"balance": balance})
}

// panelBalance digs the balance out of whichever shape this panel build
// uses: data.t, data.balance, data.shop.credits or a bare scalar.
func panelBalance(data any) (float64, bool) {
	if obj, ok := data.(map[string]any); ok {
		for _, key := range []string{"t", "balance"} {
			if v, ok := obj[key]; ok {
				return toFloat(v)
			}
		}
		if v, ok := dig(obj, "shop", "credits"); ok {
			return toFloat(v)
		}
		return 0, false
	}
	return toFloat(data)
}

// PlayerSignup creates a player account with the password set to the
// username.
func (c *PanelClient) PlayerSignup(ctx context.Context, fullname, requestedUsername string) Result {
	username := requestedUsername
	if username == "" {
		username = GenerateUsername(c.site.Initial, fullname)
	}
	password := username

	resp, err := c.call(ctx, panelAddUserPath, map[string]any{
		"account":   username,
		"nickname":  nicknameFrom(fullname),
		"login_pwd": password,
		"check_pwd": password,
		"captcha":   nil,
		"t":         "",
	})
	if err != nil {
		return Errf("%v", err)
	}
	if resp.Code != 200 || resp.Msg != "success" {
		return Errf("Signup failed: %s", resp.message())
	}

	// some panels echo back the final credentials
	if obj, ok := resp.Data.(map[string]any); ok {
		if s := toString(obj["account"]); s != "" {
			username = s
		}
		if s := toString(obj["password"]); s != "" {
			password = s
		}
	}
	return OK("User Signed up successfully!", map[string]any{
		"username": username,
		"password": password,
	})
}

// Recharge moves credit from the agent to a player.
func (c *PanelClient) Recharge(ctx context.Context, username string, amount float64) Result {
	return c.transact(ctx, username, amount, panelOpRecharge)
}

// Redeem moves credit from a player back to the agent.
func (c *PanelClient) Redeem(ctx context.Context, username string, amount float64) Result {
	return c.transact(ctx, username, amount, panelOpRedeem)
}

func (c *PanelClient) transact(ctx context.Context, username string, amount float64, op int) Result {
	user, err := c.findUser(ctx, username)
	if err != nil {
		return Errf("%v", err)
	}

	balance, _ := toFloat(user["balance"])
	units := int(math.Abs(amount))

	resp, err := c.call(ctx, panelRechargePath, map[string]any{
		"user_id":     toString(user["user_id"]),
		"type":        op,
		"account":     username,
		"balance":     balance,
		"amount":      strconv.Itoa(units),
		"remark":      "",
		"bonusStatus": 0,
	})
	if err != nil {
		return Errf("%v", err)
	}
	if strings.Contains(resp.Msg, panelBalanceLimitMsg) {
		return Errf("%s", resp.Msg)
	}
	if resp.Code != 200 && resp.Status != 200 {
		return Errf("Transaction failed: %s", resp.message())
	}
	return OK(resp.message(), map[string]any{"amount": units, "balance": balance})
}

// findUser looks a player up through the user list search and matches the
// account name exactly, ignoring case.
func (c *PanelClient) findUser(ctx context.Context, username string) (map[string]any, error) {
	resp, err := c.call(ctx, panelUserListPath, map[string]any{
		"type":   1,
		"search": username,
		"page":   1,
		"limit":  20,
	})
	if err != nil {
		return nil, err
	}

	var list []any
	switch data := resp.Data.(type) {
	case map[string]any:
		if l, ok := data["list"].([]any); ok {
			list = l
		}
	case []any:
		list = data
	}
	for _, entry := range list {
		user, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name := toString(user["login_name"])
		if name == "" {
			name = toString(user["account"])
		}
		if strings.EqualFold(name, username) {
			return user, nil
		}
	}
	return nil, fmt.Errorf("user %s not found", username)
}

func (c *PanelClient) ensureAuth(ctx context.Context) error {
	if c.token != "" {
		return nil
	}
	if c.site.Token != "" {
		c.token = c.site.Token
		return nil
	}
	return c.login(ctx)
}

// login posts the agent credentials and keeps the issued token and session
// cookie.
func (c *PanelClient) login(ctx context.Context) error {
	resp, err := c.do(ctx, panelLoginPath, map[string]any{
		"account":  c.site.Username,
		"password": c.site.Password,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if resp.Code != 200 {
		return fmt.Errorf("login failed: %s", resp.message())
	}

	token := ""
	if obj, ok := resp.Data.(map[string]any); ok {
		token = toString(obj["token"])
	}
	if token == "" {
		return fmt.Errorf("login failed: no token in response")
	}
	c.token = token

	c.logger.Info("Agent logged in", zap.String("site", c.site.Name))
	return nil
}

// call sends an authorized request, logging in again once when the session
// has expired.
func (c *PanelClient) call(ctx context.Context, path string, payload map[string]any) (*panelResponse, error) {
	if err := c.ensureAuth(ctx); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, path, payload)
	if errors.Is(err, errPanelUnauthorized) {
		c.token = ""
		c.cookie = ""
		if err := c.ensureAuth(ctx); err != nil {
			return nil, err
		}
		resp, err = c.do(ctx, path, payload)
	}
	return resp, err
}

type panelResponse struct {
	Code       int    `json:"code"`
	Status     int    `json:"status"`
	StatusCode int    `json:"status_code"`
	Msg        string `json:"msg"`
	Count      int    `json:"count"`
	Data       any    `json:"data"`
}

func (r *panelResponse) message() string {
	if r.Msg != "" {
		return r.Msg
	}
	return "Success"
}

func (c *PanelClient) do(ctx context.Context, path string, payload map[string]any) (*panelResponse, error) {
	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["locale"] = "en"
	body["timezone"] = "cst"

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.site.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Origin", c.site.BaseURL)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errPanelUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected http status %d", resp.StatusCode)
	}
	if cookies := resp.Header.Values("Set-Cookie"); len(cookies) > 0 {
		c.cookie = sessionCookie(cookies)
	}

	var out panelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.StatusCode == http.StatusUnauthorized {
		return nil, errPanelUnauthorized
	}

	c.logger.Debug("Panel API call",
		zap.String("site", c.site.Name),
		zap.String("path", path),
		zap.Int("code", out.Code))
	return &out, nil
}

// sessionCookie flattens Set-Cookie headers into a request Cookie value.
func sessionCookie(setCookies []string) string {
	pairs := make([]string, 0, len(setCookies))
	for _, sc := range setCookies {
		if pair, _, _ := strings.Cut(sc, ";"); pair != "" {
			pairs = append(pairs, strings.TrimSpace(pair))
		}
	}
	return strings.Join(pairs, "; ")
}
