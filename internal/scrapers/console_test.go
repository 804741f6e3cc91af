package scrapers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

const consoleLoginPage = `<html><body>
<form action="/default.aspx" method="post">
<input type="hidden" name="__VIEWSTATE" value="vs-login"/>
<input type="text" name="txtLoginName"/>
<input type="password" name="txtLoginPass"/>
<input type="submit" name="btnLogin" value="Login"/>
</form>
%s
</body></html>`

const consoleDashboard = `<html><body>
<form action="/Store.aspx" method="post">
<input type="hidden" name="__VIEWSTATE" value="vs-dash"/>
<input type="text" name="txtSearch"/>
<input type="submit" name="btnSearch" value="Search"/>
</form>
<a href="/CreatePlayer.aspx">Create Player</a>
</body></html>`

// consoleServer fakes the WebForms console: a stateful login page, a
// dashboard with a user search and per row action links, and the JSON side
// service for the agent balance.
type consoleServer struct {
	srv        *httptest.Server
	lastAmount string
	lastNote   string
}

func newConsoleServer(t *testing.T) *consoleServer {
	t.Helper()
	cs := &consoleServer{}

	authed := func(w http.ResponseWriter, r *http.Request) bool {
		c, err := r.Cookie("CONSOLESESS")
		if err != nil || c.Value != "ok9" {
			http.Redirect(w, r, "/default.aspx", http.StatusFound)
			return false
		}
		return true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/default.aspx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprintf(w, consoleLoginPage, "")
			return
		}
		r.ParseForm()
		if r.PostForm.Get("__VIEWSTATE") != "vs-login" {
			fmt.Fprintf(w, consoleLoginPage, `<div id="mb_msg">viewstate mismatch</div>`)
			return
		}
		if r.PostForm.Get("txtLoginName") != "agent" || r.PostForm.Get("txtLoginPass") != "Secret123" {
			fmt.Fprintf(w, consoleLoginPage, `<div id="mb_msg"><p><font>Password incorrect</font></p></div>`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "CONSOLESESS", Value: "ok9", Path: "/"})
		http.Redirect(w, r, "/Store.aspx", http.StatusFound)
	})

	mux.HandleFunc("/Store.aspx", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		if r.Method == http.MethodGet {
			fmt.Fprint(w, consoleDashboard)
			return
		}
		r.ParseForm()
		rows := `<tr><th>Account</th><th>Balance</th><th>Actions</th></tr>`
		if r.PostForm.Get("txtSearch") == "player7" {
			rows += `<tr><td>player7</td><td>50</td>` +
				`<td><a href="/Recharge.aspx?u=player7">Recharge</a> <a href="/Redeem.aspx?u=player7">Redeem</a></td></tr>`
		}
		fmt.Fprintf(w, `<html><body><table>%s</table></body></html>`, rows)
	})

	txPage := func(path string) string {
		return `<html><body><form action="` + path + `" method="post">
<input type="hidden" name="__VIEWSTATE" value="vs-tx"/>
<input type="text" name="txtAddGold"/>
<textarea name="txtReason"></textarea>
<input type="submit" name="btnOk" value="Confirm"/>
</form></body></html>`
	}
	txHandler := func(path string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !authed(w, r) {
				return
			}
			if r.Method == http.MethodGet {
				fmt.Fprint(w, txPage(path))
				return
			}
			r.ParseForm()
			cs.lastAmount = r.PostForm.Get("txtAddGold")
			cs.lastNote = r.PostForm.Get("txtReason")
			if r.PostForm.Get("__VIEWSTATE") != "vs-tx" || cs.lastAmount == "" {
				fmt.Fprint(w, `<html><body><div id="mb_msg">bad request</div></body></html>`)
				return
			}
			if cs.lastAmount == "999" {
				fmt.Fprint(w, `<html><body><div id="mb_msg"><p><font>Agent balance not enough</font></p></div></body></html>`)
				return
			}
			fmt.Fprint(w, `<html><body><div id="mb_msg"><p><font>Confirmed successful</font></p></div></body></html>`)
		}
	}
	mux.HandleFunc("/Recharge.aspx", txHandler("/Recharge.aspx?u=player7"))
	mux.HandleFunc("/Redeem.aspx", txHandler("/Redeem.aspx?u=player7"))

	mux.HandleFunc("/CreatePlayer.aspx", func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `<html><body><form action="/CreatePlayer.aspx" method="post">
<input type="hidden" name="__VIEWSTATE" value="vs-new"/>
<input type="text" name="txtAccount"/>
<input type="text" name="txtNickName"/>
<input type="password" name="txtLogonPass"/>
<input type="password" name="txtLogonPass2"/>
<input type="submit" name="btnCreate" value="Create Player"/>
</form></body></html>`)
			return
		}
		r.ParseForm()
		account := r.PostForm.Get("txtAccount")
		pass1 := r.PostForm.Get("txtLogonPass")
		pass2 := r.PostForm.Get("txtLogonPass2")
		if account == "taken99" {
			fmt.Fprint(w, `<html><body><div id="mb_msg"><p><font>Account already exists</font></p></div></body></html>`)
			return
		}
		if account == "" || pass1 != account || pass2 != account {
			fmt.Fprint(w, `<html><body><div id="mb_msg">bad form</div></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body><div id="mb_msg"><p><font>Added successfully</font></p></div></body></html>`)
	})

	mux.HandleFunc("/ws/service.ashx", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "agentLogin" || q.Get("time") == "" {
			fmt.Fprint(w, `{"code":"500","msg":"bad request"}`)
			return
		}
		if q.Get("agentName") != "agent" || q.Get("agentPasswd") != md5hex("Secret123") {
			fmt.Fprint(w, `{"code":"500","msg":"agent login failed"}`)
			return
		}
		fmt.Fprint(w, `{"code":"200","msg":"success","balance":"777.25"}`)
	})

	cs.srv = httptest.NewServer(mux)
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *consoleServer) client() *ConsoleClient {
	site := Site{
		Name:     "pandamaster",
		Family:   FamilyConsole,
		BaseURL:  cs.srv.URL,
		CheckURL: cs.srv.URL + "/ws/service.ashx",
		Initial:  "pm",
		Username: "agent",
		Password: "Secret123",
	}
	return NewConsoleClient(site, nil, zap.NewNop())
}

func TestConsoleClientAgentBalance(t *testing.T) {
	cs := newConsoleServer(t)
	c := cs.client()
	defer c.Close()

	res := c.AgentBalance(context.Background())
	if !res.IsSuccess() {
		t.Fatalf("expected success, got %s: %s", res.Status, res.Message)
	}
	if bal, _ := toFloat(res.Data["balance"]); bal != 777.25 {
		t.Errorf("expected balance 777.25, got %v", res.Data["balance"])
	}
}

func TestConsoleClientAgentBalanceRejected(t *testing.T) {
	cs := newConsoleServer(t)
	site := Site{
		Name: "pandamaster", Family: FamilyConsole, BaseURL: cs.srv.URL,
		CheckURL: cs.srv.URL + "/ws/service.ashx",
		Initial:  "pm", Username: "agent", Password: "wrong",
	}
	c := NewConsoleClient(site, nil, zap.NewNop())
	defer c.Close()

	res := c.AgentBalance(context.Background())
	if res.IsSuccess() {
		t.Fatal("expected balance failure")
	}
	if res.Message != "agent login failed" {
		t.Errorf("unexpected message %q", res.Message)
	}
}

func TestConsoleClientRecharge(t *testing.T) {
	cs := newConsoleServer(t)
	c := cs.client()
	defer c.Close()

	res := c.Recharge(context.Background(), "player7", 25)
	if !res.IsSuccess() {
		t.Fatalf("recharge failed: %s", res.Message)
	}
	if !strings.Contains(res.Message, consoleTxConfirmedMsg) {
		t.Errorf("unexpected message %q", res.Message)
	}
	if cs.lastAmount != "25" {
		t.Errorf("expected amount 25, got %q", cs.lastAmount)
	}
	if cs.lastNote != "bot transaction" {
		t.Errorf("expected transaction note, got %q", cs.lastNote)
	}
}

func TestConsoleClientRedeem(t *testing.T) {
	cs := newConsoleServer(t)
	c := cs.client()
	defer c.Close()

	res := c.Redeem(context.Background(), "player7", 10.5)
	if !res.IsSuccess() {
		t.Fatalf("redeem failed: %s", res.Message)
	}
	if cs.lastAmount != "10.5" {
		t.Errorf("expected amount 10.5, got %q", cs.lastAmount)
	}
}

func TestConsoleClientRechargeRefused(t *testing.T) {
	cs := newConsoleServer(t)
	c := cs.client()
	defer c.Close()

	res := c.Recharge(context.Background(), "player7", 999)
	if res.IsSuccess() {
		t.Fatal("expected recharge failure")
	}
	if !strings.Contains(res.Message, "Agent balance not enough") {
		t.Errorf("unexpected message %q", res.Message)
	}
}

func TestConsoleClientUserNotFound(t *testing.T) {
	cs := newConsoleServer(t)
	c := cs.client()
	defer c.Close()

	res := c.Recharge(context.Background(), "ghost", 10)
	if res.IsSuccess() {
		t.Fatal("expected failure for unknown user")
	}
	if res.Message != "User not found in table" {
		t.Errorf("unexpected message %q", res.Message)
	}
}

func TestConsoleClientPlayerSignup(t *testing.T) {
	cs := newConsoleServer(t)
	c := cs.client()
	defer c.Close()

	res := c.PlayerSignup(context.Background(), "John Smith", "newkid77")
	if !res.IsSuccess() {
		t.Fatalf("signup failed: %s", res.Message)
	}
	if res.Data["username"] != "newkid77" {
		t.Errorf("expected username newkid77, got %v", res.Data["username"])
	}
	if res.Data["password"] != "newkid77" {
		t.Errorf("expected password newkid77, got %v", res.Data["password"])
	}
}

func TestConsoleClientPlayerSignupTaken(t *testing.T) {
	cs := newConsoleServer(t)
	c := cs.client()
	defer c.Close()

	res := c.PlayerSignup(context.Background(), "John Smith", "taken99")
	if res.IsSuccess() {
		t.Fatal("expected signup failure")
	}
	if !strings.Contains(res.Message, "Account already exists") {
		t.Errorf("unexpected message %q", res.Message)
	}
}

func TestConsoleClientLoginRejected(t *testing.T) {
	cs := newConsoleServer(t)
	site := Site{
		Name: "pandamaster", Family: FamilyConsole, BaseURL: cs.srv.URL,
		Initial: "pm", Username: "agent", Password: "wrong",
	}
	c := NewConsoleClient(site, nil, zap.NewNop())
	defer c.Close()

	res := c.Recharge(context.Background(), "player7", 10)
	if res.IsSuccess() {
		t.Fatal("expected login failure")
	}
	if !strings.Contains(res.Message, "Password incorrect") {
		t.Errorf("unexpected message %q", res.Message)
	}
}

func TestConsoleClientCaptchaDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form action="/default.aspx" method="post">
<input type="text" name="txtLoginName"/>
<input type="password" name="txtLoginPass"/>
<input type="text" name="txtVerifyCode"/>
<img id="ImageCheck" src="/check.aspx"/>
<input type="submit" name="btnLogin" value="Login"/>
</form></body></html>`)
	}))
	defer srv.Close()

	site := Site{
		Name: "pandamaster", Family: FamilyConsole, BaseURL: srv.URL,
		Initial: "pm", Username: "agent", Password: "Secret123",
	}
	c := NewConsoleClient(site, nil, zap.NewNop())
	defer c.Close()

	res := c.Recharge(context.Background(), "player7", 10)
	if res.IsSuccess() {
		t.Fatal("expected captcha rejection")
	}
	if !strings.Contains(res.Message, "captcha") {
		t.Errorf("unexpected message %q", res.Message)
	}
}
