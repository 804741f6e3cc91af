package scrapers

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Family selects the protocol a site speaks.
type Family string

const (
	// FamilySigned is the JSON API family with MD5 request signatures and
	// an AES wrapped app secret handed out at login.
	FamilySigned Family = "signed"
	// FamilyPanel is the JSON admin panel family with bearer token auth.
	FamilyPanel Family = "panel"
	// FamilyConsole is the ASP.NET WebForms family driven through HTML
	// forms, with a JSON side service for the agent balance.
	FamilyConsole Family = "console"
)

// Site holds everything needed to talk to one vendor console.
type Site struct {
	Name    string
	Family  Family
	BaseURL string
	// CheckURL is the console family's JSON side service. Unused by the
	// other families.
	CheckURL string
	// AppID is sent by the signed family when the vendor assigned one.
	AppID string
	// Initial prefixes generated player usernames.
	Initial string

	Username string
	Password string
	// Token is a pre-issued panel session token. When set the panel
	// family skips the login call entirely.
	Token string
}

// builtinSites lists every supported game. Credentials come from the
// environment, see ApplyEnv.
var builtinSites = []Site{
	{Name: "egame99", Family: FamilySigned, BaseURL: "https://papi.egame99.vip", Initial: "eg"},
	{Name: "vblink777", Family: FamilySigned, BaseURL: "https://www.vblink777.club", Initial: "vb"},

	{Name: "gamevault999", Family: FamilyPanel, BaseURL: "https://agent.gamevault999.com", Initial: "gv"},
	{Name: "juwa777", Family: FamilyPanel, BaseURL: "https://ht.juwa777.com", Initial: "jw"},
	{Name: "juwa2", Family: FamilyPanel, BaseURL: "https://agent.juwa2.com", Initial: "jt"},
	{Name: "cashfrenzy777", Family: FamilyPanel, BaseURL: "https://agentserver.cashfrenzy777.com", Initial: "cf"},
	{Name: "vegasx", Family: FamilyPanel, BaseURL: "https://cashier.vegas-x.org", Initial: "vx"},
	{Name: "lasvegassweeps", Family: FamilyPanel, BaseURL: "https://agent.lasvegassweeps.com", Initial: "vs"},
	{Name: "ultrapanda", Family: FamilyPanel, BaseURL: "https://ht.ultrapanda.mobi", Initial: "up"},
	{Name: "cashmachine777", Family: FamilyPanel, BaseURL: "https://agent.cashmachine777.com", Initial: "cm"},
	{Name: "gameroom777", Family: FamilyPanel, BaseURL: "https://agent.gameroom777.com", Initial: "gr"},
	{Name: "mrallinone777", Family: FamilyPanel, BaseURL: "https://agent.mrallinone777.com", Initial: "ma"},
	{Name: "vegasroll", Family: FamilyPanel, BaseURL: "https://agent.vegasroll.com", Initial: "vr"},

	{Name: "pandamaster", Family: FamilyConsole, BaseURL: "https://pandamaster.vip", CheckURL: "https://pandamaster.vip:8033/ws/service.ashx", Initial: "pm"},
	{Name: "orionstars", Family: FamilyConsole, BaseURL: "https://orionstars.vip:8781", CheckURL: "https://orionstars.vip:8033/ws/service.ashx", Initial: "os"},
	{Name: "moolah", Family: FamilyConsole, BaseURL: "https://moolah.vip:8781", CheckURL: "https://milkywayapp.xyz:8033/ws/service.ashx", Initial: "mh"},
	{Name: "milkywayapp", Family: FamilyConsole, BaseURL: "https://milkywayapp.xyz:8781", CheckURL: "https://milkywayapp.xyz:8033/ws/service.ashx", Initial: "mw"},
	{Name: "firekirin", Family: FamilyConsole, BaseURL: "https://firekirin.xyz:8888", CheckURL: "https://firekirin.xyz:8033/ws/service.ashx", Initial: "fk"},
}

// BuiltinSites returns the supported site table keyed by game name.
func BuiltinSites() map[string]Site {
	sites := make(map[string]Site, len(builtinSites))
	for _, s := range builtinSites {
		sites[s.Name] = s
	}
	return sites
}

// ApplyEnv overlays per site settings from the environment. Variables follow
// the pattern SITE_<NAME>_USERNAME, _PASSWORD, _TOKEN, _URL and _APPID, with
// the game name upper cased, e.g. SITE_JUWA777_USERNAME.
func ApplyEnv(sites map[string]Site) {
	for name, site := range sites {
		prefix := "SITE_" + strings.ToUpper(name) + "_"
		if v := os.Getenv(prefix + "USERNAME"); v != "" {
			site.Username = v
		}
		if v := os.Getenv(prefix + "PASSWORD"); v != "" {
			site.Password = v
		}
		if v := os.Getenv(prefix + "TOKEN"); v != "" {
			site.Token = v
		}
		if v := os.Getenv(prefix + "URL"); v != "" {
			site.BaseURL = strings.TrimRight(v, "/")
		}
		if v := os.Getenv(prefix + "CHECK_URL"); v != "" {
			site.CheckURL = v
		}
		if v := os.Getenv(prefix + "APPID"); v != "" {
			site.AppID = v
		}
		sites[name] = site
	}
}

// SiteNames returns the sorted game names of a site table.
func SiteNames(sites map[string]Site) []string {
	names := make([]string, 0, len(sites))
	for name := range sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s Site) validate() error {
	if s.Name == "" {
		return fmt.Errorf("site name is empty")
	}
	if s.BaseURL == "" {
		return fmt.Errorf("site %s has no base URL", s.Name)
	}
	switch s.Family {
	case FamilySigned, FamilyPanel, FamilyConsole:
	default:
		return fmt.Errorf("site %s has unknown family %q", s.Name, s.Family)
	}
	return nil
}
