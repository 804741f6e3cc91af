package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scraperhub/internal/bot"
	"scraperhub/internal/config"
	"scraperhub/internal/scrape"
	"scraperhub/internal/scrapers"
	"scraperhub/internal/security"
	"scraperhub/internal/storage"
	"scraperhub/internal/worker"
)

const (
	serviceName    = "scraperhub"
	serviceVersion = "1.0.0"
)

// API is the REST surface of the service. Every field is wired once at
// startup; handlers only read them.
type API struct {
	Cfg      *config.Config
	Store    storage.Store
	TxLog    storage.TransactionLog
	Keys     *security.KeyStore
	Registry *bot.Registry
	Handler  *bot.Handler
	Engine   *scrape.Engine
	Factory  *scrapers.Factory
	Queue    worker.Queue
	Logger   *zap.Logger
}

// Router assembles all routes under /api/v1 plus the root and health
// endpoints. Webhook ingestion is mounted inside /api/v1 but is exempt
// from API-key auth because Telegram authenticates with its own secret
// token header.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(a.recoverMiddleware)
	r.Use(a.timingMiddleware)
	r.Use(a.authMiddleware)

	r.Get("/", a.root)
	r.Get("/health", a.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", a.itemList)
			r.Post("/", a.itemCreate)
			r.Delete("/", a.itemDeleteAll)
			r.Get("/{id}", a.itemGet)
			r.Put("/{id}", a.itemUpdate)
			r.Patch("/{id}", a.itemUpdate)
			r.Delete("/{id}", a.itemDelete)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", a.userList)
			r.Post("/", a.userCreate)
			r.Get("/{id}", a.userGet)
			r.Put("/{id}", a.userUpdate)
			r.Patch("/{id}", a.userUpdate)
			r.Delete("/{id}", a.userDelete)
		})

		r.Route("/auth/keys", func(r chi.Router) {
			r.Post("/generate", a.keyGenerate)
			r.Post("/encrypt", a.keyEncrypt)
			r.Post("/decrypt", a.keyDecrypt)
			r.Post("/validate", a.keyValidate)
			r.Delete("/revoke", a.keyRevoke)
		})

		r.Route("/bots", func(r chi.Router) {
			r.Get("/", a.botList)
			r.Post("/register", a.botRegister)
			r.Post("/register/bulk", a.botRegisterBulk)
			r.Post("/broadcast", a.botBroadcast)
			r.Get("/stats", a.botStats)
			r.Post("/webhooks/setup", a.webhookSetupAll)
			r.Delete("/webhooks", a.webhookDeleteAll)
			r.Get("/{id}", a.botGet)
			r.Patch("/{id}", a.botUpdate)
			r.Delete("/{id}", a.botRemove)
			r.Post("/{id}/test", a.botTest)
			r.Post("/{id}/webhook", a.webhookSetup)
			r.Delete("/{id}/webhook", a.webhookDelete)
			r.Get("/{id}/webhook", a.webhookInfo)
		})

		// Inbound Telegram updates, one path per registered bot.
		r.Post("/webhook/{id}", a.webhookIngest)

		r.Route("/scraper", func(r chi.Router) {
			r.Post("/scrape", a.scrape)
			r.Post("/scrape/batch", a.scrapeBatch)
			r.Post("/scrape/simple", a.scrapeSimple)
			r.Get("/status", a.scraperStatus)
			r.Get("/games", a.scraperGames)
			r.Get("/transactions", a.scraperTransactions)
		})

		r.Route("/bot", func(r chi.Router) {
			r.Post("/action", a.actionQueue)
			r.Get("/task/{id}", a.actionResult)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	return r
}

func (a *API) root(w http.ResponseWriter, r *http.Request) {
	total, active := a.Registry.Count()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
		"bots":    map[string]int{"total": total, "active": active},
	})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	total, active := a.Registry.Count()
	names := make([]string, 0, total)
	for _, client := range a.Registry.List() {
		names = append(names, client.Config().BotName)
	}

	telegram := "ready"
	if active == 0 {
		telegram = "no_bots"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"environment": a.Cfg.Environment,
		"version":     serviceVersion,
		"bots": map[string]any{
			"total":  total,
			"active": active,
			"names":  names,
		},
		"services": map[string]string{
			"scraper":  "ready",
			"telegram": telegram,
		},
	})
}
