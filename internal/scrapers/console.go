package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Console family markers. The WebForms consoles confirm actions with a
// message box; these phrases are the only reliable success signal.
const (
	consoleLoginPath      = "/default.aspx"
	consoleTxConfirmedMsg = "Confirmed successful"
	consoleAddedMsg       = "Added successfully"
)

var (
	captchaFieldRe = regexp.MustCompile(`(?i)captcha|verify`)
	searchFieldRe  = regexp.MustCompile(`(?i)search`)
	amountFieldRe  = regexp.MustCompile(`(?i)gold|amount|score|money`)
	accountFieldRe = regexp.MustCompile(`(?i)account|user`)
	nickFieldRe    = regexp.MustCompile(`(?i)nick`)
)

// ConsoleClient drives the ASP.NET WebForms console family through its HTML
// forms. Fields are picked structurally, by type and name, since the
// consoles differ in markup details. The agent balance goes through the
// JSON side service instead of the forms.
type ConsoleClient struct {
	site   Site
	http   *http.Client
	logger *zap.Logger

	loggedIn bool
	dashURL  *url.URL
}

// NewConsoleClient creates a client for a console family site. The HTTP
// client carries the ASP.NET session cookie, so one with a jar is required;
// passing nil builds a suitable client.
func NewConsoleClient(site Site, client *http.Client, logger *zap.Logger) *ConsoleClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if client.Jar == nil {
		jar, _ := cookiejar.New(nil)
		client.Jar = jar
	}
	return &ConsoleClient{site: site, http: client, logger: logger}
}

func (c *ConsoleClient) Site() string { return c.site.Name }

func (c *ConsoleClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// AgentBalance queries the JSON side service. The console password travels
// as its MD5 per the service contract.
func (c *ConsoleClient) AgentBalance(ctx context.Context) Result {
	if c.site.CheckURL == "" {
		return Errf("no balance service configured for %s", c.site.Name)
	}

	q := url.Values{}
	q.Set("action", "agentLogin")
	q.Set("agentName", c.site.Username)
	q.Set("agentPasswd", md5hex(c.site.Password))
	q.Set("time", strconv.FormatInt(time.Now().UnixMilli(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.site.CheckURL+"?"+q.Encode(), nil)
	if err != nil {
		return Errf("failed to build request: %v", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Errf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Errf("failed to decode response: %v", err)
	}
	// the service reports its code as a string
	if toString(out["code"]) != "200" {
		msg := toString(out["msg"])
		if msg == "" {
			msg = "Unknown API error"
		}
		return Errf("%s", msg)
	}
	balance, ok := toFloat(out["balance"])
	if !ok {
		return Errf("no balance in response")
	}
	return OK("Success", map[string]any{"balance": balance})
}

// PlayerSignup creates a player through the console's create form.
func (c *ConsoleClient) PlayerSignup(ctx context.Context, fullname, requestedUsername string) Result {
	if err := c.ensureLogin(ctx); err != nil {
		return Errf("%v", err)
	}

	username := requestedUsername
	if username == "" {
		username = GenerateUsername(c.site.Initial, fullname)
	}
	password := username

	doc, pageURL, err := c.followLink(ctx, c.dashURL, "create", "add")
	if err != nil {
		return Errf("%v", err)
	}

	form := doc.Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
		return f.Find(`input[type="password"]`).Length() > 0
	}).First()
	if form.Length() == 0 {
		return Errf("create player form not found")
	}

	vals := formValues(form)
	filled := false
	form.Find(`input[type="text"]`).Each(func(_ int, in *goquery.Selection) {
		name := in.AttrOr("name", "")
		switch {
		case name == "":
		case nickFieldRe.MatchString(name):
			vals.Set(name, nicknameFrom(fullname))
		case accountFieldRe.MatchString(name) || !filled:
			vals.Set(name, username)
			filled = true
		}
	})
	form.Find(`input[type="password"]`).Each(func(_ int, in *goquery.Selection) {
		if name := in.AttrOr("name", ""); name != "" {
			vals.Set(name, password)
		}
	})

	result, _, err := c.submit(ctx, pageURL, form, vals)
	if err != nil {
		return Errf("%v", err)
	}
	if msg := messageBox(result); !strings.Contains(msg, consoleAddedMsg) {
		return Errf("Signup failed: %s", msg)
	}
	return OK("User Signed up successfully!", map[string]any{
		"username": username,
		"password": password,
	})
}

// Recharge moves credit to a player through the console forms.
func (c *ConsoleClient) Recharge(ctx context.Context, username string, amount float64) Result {
	return c.transact(ctx, username, amount, "recharge")
}

// Redeem pulls credit back from a player through the console forms.
func (c *ConsoleClient) Redeem(ctx context.Context, username string, amount float64) Result {
	return c.transact(ctx, username, amount, "redeem")
}

func (c *ConsoleClient) transact(ctx context.Context, username string, amount float64, verb string) Result {
	if err := c.ensureLogin(ctx); err != nil {
		return Errf("%v", err)
	}

	row, rowURL, err := c.findUserRow(ctx, username)
	if err != nil {
		return Errf("%v", err)
	}
	if row == nil {
		return Errf("User not found in table")
	}

	href := linkIn(row, verb)
	if href == "" {
		return Errf("no %s action for user %s", verb, username)
	}
	doc, pageURL, err := c.get(ctx, resolveRef(rowURL, href))
	if err != nil {
		return Errf("%v", err)
	}

	form, vals := amountForm(doc, amount)
	if form == nil {
		return Errf("%s form not found", verb)
	}
	result, _, err := c.submit(ctx, pageURL, form, vals)
	if err != nil {
		return Errf("%v", err)
	}

	msg := messageBox(result)
	if !strings.Contains(msg, consoleTxConfirmedMsg) {
		if msg == "" {
			msg = "Transaction failed"
		}
		return Errf("%s", msg)
	}
	return OK(msg, map[string]any{"amount": math.Abs(amount)})
}

// amountForm locates the form carrying an amount style input, fills it and
// drops a note into any reason textarea the form has.
func amountForm(doc *goquery.Document, amount float64) (*goquery.Selection, url.Values) {
	form := doc.Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
		return fieldMatching(f, amountFieldRe) != ""
	}).First()
	if form.Length() == 0 {
		return nil, nil
	}

	vals := formValues(form)
	vals.Set(fieldMatching(form, amountFieldRe), strconv.FormatFloat(math.Abs(amount), 'f', -1, 64))
	form.Find("textarea").Each(func(_ int, ta *goquery.Selection) {
		if name := ta.AttrOr("name", ""); name != "" {
			vals.Set(name, "bot transaction")
		}
	})
	return form, vals
}

// findUserRow submits the dashboard search form and scans the result table
// for an exact account match.
func (c *ConsoleClient) findUserRow(ctx context.Context, username string) (*goquery.Selection, *url.URL, error) {
	doc, pageURL, err := c.get(ctx, c.dashURL.String())
	if err != nil {
		return nil, nil, err
	}

	form := doc.Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
		return fieldMatching(f, searchFieldRe) != ""
	}).First()
	if form.Length() == 0 {
		return nil, nil, fmt.Errorf("search form not found")
	}

	vals := formValues(form)
	vals.Set(fieldMatching(form, searchFieldRe), username)
	result, resultURL, err := c.submit(ctx, pageURL, form, vals)
	if err != nil {
		return nil, nil, err
	}

	var row *goquery.Selection
	result.Find("table tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		match := false
		tr.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
			if strings.EqualFold(strings.TrimSpace(td.Text()), username) {
				match = true
				return false
			}
			return true
		})
		if match {
			row = tr
			return false
		}
		return true
	})
	return row, resultURL, nil
}

func (c *ConsoleClient) ensureLogin(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}
	return c.login(ctx)
}

// login fills the first password carrying form on the login page. Hidden
// fields, including the WebForms view state, ride along untouched. A
// captcha input means the console cannot be driven and login fails fast.
func (c *ConsoleClient) login(ctx context.Context) error {
	doc, pageURL, err := c.get(ctx, c.site.BaseURL+consoleLoginPath)
	if err != nil {
		return fmt.Errorf("failed to load login page: %w", err)
	}

	form := doc.Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
		return f.Find(`input[type="password"]`).Length() > 0
	}).First()
	if form.Length() == 0 {
		return fmt.Errorf("login form not found")
	}
	if fieldMatching(form, captchaFieldRe) != "" {
		return fmt.Errorf("login requires a captcha")
	}

	userField := form.Find(`input[type="text"]`).First().AttrOr("name", "")
	passField := form.Find(`input[type="password"]`).First().AttrOr("name", "")
	if userField == "" || passField == "" {
		return fmt.Errorf("login form is missing credential fields")
	}

	vals := formValues(form)
	vals.Set(userField, c.site.Username)
	vals.Set(passField, c.site.Password)

	result, resultURL, err := c.submit(ctx, pageURL, form, vals)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	// still seeing a password field means the console bounced us back
	if result.Find(`input[type="password"]`).Length() > 0 {
		msg := messageBox(result)
		if msg == "" {
			msg = "credentials rejected"
		}
		return fmt.Errorf("login failed: %s", msg)
	}

	c.loggedIn = true
	c.dashURL = resultURL
	c.logger.Info("Agent logged in", zap.String("site", c.site.Name), zap.String("dashboard", resultURL.String()))
	return nil
}

// followLink fetches the first dashboard link whose text contains one of
// the given words.
func (c *ConsoleClient) followLink(ctx context.Context, from *url.URL, words ...string) (*goquery.Document, *url.URL, error) {
	doc, pageURL, err := c.get(ctx, from.String())
	if err != nil {
		return nil, nil, err
	}
	href := linkIn(doc.Selection, words...)
	if href == "" {
		return nil, nil, fmt.Errorf("no link matching %v", words)
	}
	return c.get(ctx, resolveRef(pageURL, href))
}

func (c *ConsoleClient) get(ctx context.Context, rawURL string) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	return c.fetch(req)
}

// submit posts form values to the form's action, resolved against the page
// the form came from.
func (c *ConsoleClient) submit(ctx context.Context, pageURL *url.URL, form *goquery.Selection, vals url.Values) (*goquery.Document, *url.URL, error) {
	action := resolveRef(pageURL, form.AttrOr("action", ""))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(vals.Encode()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.fetch(req)
}

func (c *ConsoleClient) fetch(req *http.Request) (*goquery.Document, *url.URL, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, nil, fmt.Errorf("unexpected http status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse page: %w", err)
	}

	c.logger.Debug("Console page fetched",
		zap.String("site", c.site.Name),
		zap.String("url", resp.Request.URL.String()))
	return doc, resp.Request.URL, nil
}

// formValues collects the form's hidden inputs and submit buttons, the
// fields a browser would carry along unchanged.
func formValues(form *goquery.Selection) url.Values {
	vals := url.Values{}
	form.Find(`input[type="hidden"], input[type="submit"]`).Each(func(_ int, in *goquery.Selection) {
		if name := in.AttrOr("name", ""); name != "" {
			vals.Set(name, in.AttrOr("value", ""))
		}
	})
	return vals
}

// fieldMatching returns the name of the first input in the form whose name
// matches the pattern.
func fieldMatching(form *goquery.Selection, re *regexp.Regexp) string {
	found := ""
	form.Find("input").EachWithBreak(func(_ int, in *goquery.Selection) bool {
		if name := in.AttrOr("name", ""); name != "" && re.MatchString(name) {
			found = name
			return false
		}
		return true
	})
	return found
}

// linkIn returns the href of the first anchor whose text contains one of
// the words, ignoring case.
func linkIn(scope *goquery.Selection, words ...string) string {
	href := ""
	scope.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.ToLower(a.Text())
		for _, w := range words {
			if strings.Contains(text, strings.ToLower(w)) {
				href = a.AttrOr("href", "")
				return false
			}
		}
		return true
	})
	return href
}

// messageBox extracts the console's confirmation text. The consoles render
// it in a message box element; failing that the page text is scanned.
func messageBox(doc *goquery.Document) string {
	for _, sel := range []string{"#mb_msg", ".mb_msg", "#customAlert"} {
		if msg := strings.TrimSpace(doc.Find(sel).Text()); msg != "" {
			return msg
		}
	}
	text := doc.Text()
	for _, known := range []string{consoleTxConfirmedMsg, consoleAddedMsg} {
		if strings.Contains(text, known) {
			return known
		}
	}
	return ""
}

func resolveRef(base *url.URL, href string) string {
	if href == "" {
		return base.String()
	}
	ref, err := url.Parse(href)
	if err != nil {
		return base.String()
	}
	return base.ResolveReference(ref).String()
}
