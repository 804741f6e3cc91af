package scrapers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// panelServer fakes the JSON admin panel family: token login, cookie
// session and the user management endpoints.
type panelServer struct {
	srv    *httptest.Server
	token  string
	logins int
}

func newPanelServer(t *testing.T) *panelServer {
	t.Helper()
	ps := &panelServer{token: "tok-1"}

	reply := func(w http.ResponseWriter, v map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	decode := func(r *http.Request) map[string]any {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		return body
	}

	mux := http.NewServeMux()
	mux.HandleFunc(panelLoginPath, func(w http.ResponseWriter, r *http.Request) {
		body := decode(r)
		if body["account"] != "agent" || body["password"] != "Secret123" {
			reply(w, map[string]any{"code": 401, "msg": "bad credentials"})
			return
		}
		ps.logins++
		http.SetCookie(w, &http.Cookie{Name: "PANELSESS", Value: "sess-9", Path: "/"})
		reply(w, map[string]any{"code": 200, "msg": "success", "data": map[string]any{"token": ps.token}})
	})

	authorized := func(next func(http.ResponseWriter, *http.Request, map[string]any)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != ps.token {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r, decode(r))
		}
	}

	mux.HandleFunc(panelBalancePath, authorized(func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		reply(w, map[string]any{"code": 200, "msg": "success", "data": map[string]any{"t": "1234.5"}})
	}))
	mux.HandleFunc(panelUserListPath, authorized(func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		if body["search"] == "ghost" {
			reply(w, map[string]any{"code": 200, "count": 0, "data": map[string]any{"list": []any{}}})
			return
		}
		reply(w, map[string]any{"code": 200, "count": 1, "data": map[string]any{"list": []any{
			map[string]any{"login_name": "Player1", "user_id": 42, "balance": "10"},
		}}})
	}))
	mux.HandleFunc(panelRechargePath, authorized(func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		if body["amount"] == "999" {
			reply(w, map[string]any{"code": 200, "msg": panelBalanceLimitMsg})
			return
		}
		if body["user_id"] != "42" {
			reply(w, map[string]any{"code": 500, "msg": "unknown user"})
			return
		}
		reply(w, map[string]any{"code": 200, "msg": "Operation succeeded"})
	}))
	mux.HandleFunc(panelAddUserPath, authorized(func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		account := toString(body["account"])
		if body["login_pwd"] != body["check_pwd"] || account == "" {
			reply(w, map[string]any{"code": 500, "msg": "bad payload"})
			return
		}
		reply(w, map[string]any{"code": 200, "msg": "success", "data": map[string]any{
			"account":  "ag_" + account,
			"password": toString(body["login_pwd"]),
		}})
	}))

	ps.srv = httptest.NewServer(mux)
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *panelServer) client(token string) *PanelClient {
	site := Site{
		Name:     "juwa777",
		Family:   FamilyPanel,
		BaseURL:  ps.srv.URL,
		Initial:  "jw",
		Username: "agent",
		Password: "Secret123",
		Token:    token,
	}
	return NewPanelClient(site, ps.srv.Client(), zap.NewNop())
}

func TestPanelClientAgentBalance(t *testing.T) {
	ps := newPanelServer(t)
	c := ps.client("")
	defer c.Close()

	res := c.AgentBalance(context.Background())
	if !res.IsSuccess() {
		t.Fatalf("expected success, got %s: %s", res.Status, res.Message)
	}
	if bal, _ := toFloat(res.Data["balance"]); bal != 1234.5 {
		t.Errorf("expected balance 1234.5, got %v", res.Data["balance"])
	}
	if ps.logins != 1 {
		t.Errorf("expected one login, got %d", ps.logins)
	}
}

func TestPanelClientStaticToken(t *testing.T) {
	ps := newPanelServer(t)
	c := ps.client("tok-1")
	defer c.Close()

	res := c.AgentBalance(context.Background())
	if !res.IsSuccess() {
		t.Fatalf("expected success with static token, got %s", res.Message)
	}
	if ps.logins != 0 {
		t.Errorf("static token must skip login, saw %d logins", ps.logins)
	}
}

func TestPanelClientReloginOnExpiredSession(t *testing.T) {
	ps := newPanelServer(t)
	c := ps.client("")
	defer c.Close()

	if res := c.AgentBalance(context.Background()); !res.IsSuccess() {
		t.Fatalf("first call failed: %s", res.Message)
	}

	// invalidate the issued token server side
	ps.token = "tok-2"

	res := c.AgentBalance(context.Background())
	if !res.IsSuccess() {
		t.Fatalf("expected transparent re-login, got %s", res.Message)
	}
	if ps.logins != 2 {
		t.Errorf("expected two logins, got %d", ps.logins)
	}
}

func TestPanelClientLoginRejected(t *testing.T) {
	ps := newPanelServer(t)
	site := Site{
		Name: "juwa777", Family: FamilyPanel, BaseURL: ps.srv.URL,
		Initial: "jw", Username: "agent", Password: "wrong",
	}
	c := NewPanelClient(site, ps.srv.Client(), zap.NewNop())
	defer c.Close()

	res := c.AgentBalance(context.Background())
	if res.IsSuccess() {
		t.Fatal("expected login failure")
	}
	if !strings.Contains(res.Message, "login failed") {
		t.Errorf("unexpected message %q", res.Message)
	}
}

func TestPanelClientRecharge(t *testing.T) {
	ps := newPanelServer(t)
	c := ps.client("")
	defer c.Close()

	res := c.Recharge(context.Background(), "player1", 25.7)
	if !res.IsSuccess() {
		t.Fatalf("recharge failed: %s", res.Message)
	}
	if res.Message != "Operation succeeded" {
		t.Errorf("unexpected message %q", res.Message)
	}
	if res.Data["amount"] != 25 {
		t.Errorf("expected whole credits 25, got %v", res.Data["amount"])
	}
}

func TestPanelClientRedeemBalanceLimit(t *testing.T) {
	ps := newPanelServer(t)
	c := ps.client("")
	defer c.Close()

	res := c.Redeem(context.Background(), "player1", 999)
	if res.IsSuccess() {
		t.Fatal("expected redeem failure")
	}
	if !strings.Contains(res.Message, panelBalanceLimitMsg) {
		t.Errorf("unexpected message %q", res.Message)
	}
}

func TestPanelClientUserNotFound(t *testing.T) {
	ps := newPanelServer(t)
	c := ps.client("")
	defer c.Close()

	res := c.Recharge(context.Background(), "ghost", 10)
	if res.IsSuccess() {
		t.Fatal("expected failure for unknown user")
	}
	if !strings.Contains(res.Message, "not found") {
		t.Errorf("unexpected message %q", res.Message)
	}
}

func TestPanelClientPlayerSignup(t *testing.T) {
	ps := newPanelServer(t)
	c := ps.client("")
	defer c.Close()

	res := c.PlayerSignup(context.Background(), "John Smith", "buddy99")
	if !res.IsSuccess() {
		t.Fatalf("signup failed: %s", res.Message)
	}
	if res.Data["username"] != "ag_buddy99" {
		t.Errorf("expected panel account ag_buddy99, got %v", res.Data["username"])
	}
	if res.Data["password"] != "buddy99" {
		t.Errorf("expected password buddy99, got %v", res.Data["password"])
	}
}
