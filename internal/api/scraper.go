package api

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"scraperhub/internal/bot"
	"scraperhub/internal/models"
	"scraperhub/internal/scrape"
)

const maxBatchURLs = 50

type scrapeRequest struct {
	scrape.Request
	SendToTelegram *bool    `json:"send_to_telegram"`
	BotID          string   `json:"bot_id"`
	BotIDs         []string `json:"bot_ids"`
}

type batchScrapeRequest struct {
	URLs           []string               `json:"urls"`
	WaitTime       int                    `json:"wait_time"`
	TakeScreenshot bool                   `json:"take_screenshot"`
	ExtractRules   map[string]scrape.Rule `json:"extract_rules"`
	SendToTelegram *bool                  `json:"send_to_telegram"`
	SendIndividual bool                   `json:"send_individual_results"`
	BotID          string                 `json:"bot_id"`
	BotIDs         []string               `json:"bot_ids"`
}

type simpleScrapeRequest struct {
	URL            string `json:"url"`
	SendToTelegram *bool  `json:"send_to_telegram"`
	BotID          string `json:"bot_id"`
}

type scrapeResponse struct {
	models.PageResult
	TelegramSent bool     `json:"telegram_sent"`
	NotifiedBots []string `json:"notified_bots"`
}

// notifyTargets resolves which bots receive a scrape notification: an
// explicit id list wins, then a single id, then every active bot.
func (a *API) notifyTargets(botID string, botIDs []string) []*bot.Client {
	if len(botIDs) > 0 {
		clients := make([]*bot.Client, 0, len(botIDs))
		for _, id := range botIDs {
			if client, ok := a.Registry.Get(id); ok {
				clients = append(clients, client)
			}
		}
		return clients
	}
	if botID != "" {
		if client, ok := a.Registry.Get(botID); ok {
			return []*bot.Client{client}
		}
		return nil
	}
	var clients []*bot.Client
	for _, client := range a.Registry.List() {
		if client.Config().IsActive {
			clients = append(clients, client)
		}
	}
	return clients
}

func httpURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (a *API) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if !httpURL(req.URL) {
		writeError(w, http.StatusBadRequest, "validation_error", "url must be an http(s) URL")
		return
	}

	result := a.Engine.Scrape(r.Context(), req.Request)

	resp := scrapeResponse{PageResult: result, NotifiedBots: []string{}}
	if boolOr(req.SendToTelegram, true) {
		for _, client := range a.notifyTargets(req.BotID, req.BotIDs) {
			if err := client.SendScrapeResult(r.Context(), result); err != nil {
				a.Logger.Warn("Failed to notify bot",
					zap.String("bot_id", client.Config().BotID), zap.Error(err))
				continue
			}
			resp.NotifiedBots = append(resp.NotifiedBots, client.Config().BotID)
		}
		resp.TelegramSent = len(resp.NotifiedBots) > 0
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) scrapeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchScrapeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if len(req.URLs) == 0 || len(req.URLs) > maxBatchURLs {
		writeError(w, http.StatusBadRequest, "validation_error",
			"urls must contain 1 to %d entries", maxBatchURLs)
		return
	}
	for _, u := range req.URLs {
		if !httpURL(u) {
			writeError(w, http.StatusBadRequest, "validation_error",
				"'%s' is not an http(s) URL", u)
			return
		}
	}

	reqs := make([]scrape.Request, len(req.URLs))
	for i, u := range req.URLs {
		reqs[i] = scrape.Request{
			URL:            u,
			WaitTime:       req.WaitTime,
			ExtractRules:   req.ExtractRules,
			TakeScreenshot: req.TakeScreenshot,
		}
	}
	results := a.Engine.ScrapeBatch(r.Context(), reqs, 0)

	successful := 0
	for _, res := range results {
		if res.Success {
			successful++
		}
	}
	failed := len(results) - successful

	notified := []string{}
	if boolOr(req.SendToTelegram, true) {
		summary := fmt.Sprintf(
			"📊 Batch Scraping Complete\n\n✅ Successful: %d\n❌ Failed: %d\n📈 Total: %d\n📡 Source: API",
			successful, failed, len(results))

		for _, client := range a.notifyTargets(req.BotID, req.BotIDs) {
			var err error
			if req.SendIndividual {
				for _, res := range results {
					if err = client.SendScrapeResult(r.Context(), res); err != nil {
						break
					}
				}
			} else {
				err = client.SendToChannel(r.Context(), summary)
			}
			if err != nil {
				a.Logger.Warn("Failed to notify bot",
					zap.String("bot_id", client.Config().BotID), zap.Error(err))
				continue
			}
			notified = append(notified, client.Config().BotID)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":         len(results),
		"successful":    successful,
		"failed":        failed,
		"results":       results,
		"telegram_sent": len(notified) > 0,
		"notified_bots": notified,
	})
}

func (a *API) scrapeSimple(w http.ResponseWriter, r *http.Request) {
	var req simpleScrapeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if !httpURL(req.URL) {
		writeError(w, http.StatusBadRequest, "validation_error", "url must be an http(s) URL")
		return
	}

	result := a.Engine.Scrape(r.Context(), scrape.Request{URL: req.URL})

	notified := []string{}
	if boolOr(req.SendToTelegram, true) {
		for _, client := range a.notifyTargets(req.BotID, nil) {
			if err := client.SendScrapeResult(r.Context(), result); err != nil {
				continue
			}
			notified = append(notified, client.Config().BotID)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       result.Success,
		"url":           result.URL,
		"title":         result.Title,
		"error":         result.Error,
		"html_length":   result.HTMLLength,
		"telegram_sent": len(notified) > 0,
		"notified_bots": notified,
	})
}

func (a *API) scraperStatus(w http.ResponseWriter, r *http.Request) {
	total, active := a.Registry.Count()
	names := make([]string, 0, active)
	for _, client := range a.Registry.List() {
		if cfg := client.Config(); cfg.IsActive {
			names = append(names, cfg.BotName)
		}
	}

	pending, err := a.Queue.Length(r.Context())
	if err != nil {
		a.Logger.Warn("Failed to read queue length", zap.Error(err))
		pending = -1
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scraper": map[string]any{
			"available":       true,
			"timeout_seconds": int(a.Cfg.ScrapeTimeout.Seconds()),
			"user_agent":      a.Cfg.ScrapeUserAgent,
		},
		"telegram": map[string]any{
			"total_bots":  total,
			"active_bots": active,
			"bot_names":   names,
		},
		"queue": map[string]any{
			"pending": pending,
		},
		"settings": map[string]any{
			"environment": a.Cfg.Environment,
		},
	})
}

func (a *API) scraperGames(w http.ResponseWriter, r *http.Request) {
	games := a.Factory.Supported()
	writeJSON(w, http.StatusOK, map[string]any{
		"games": games,
		"total": len(games),
	})
}

func (a *API) scraperTransactions(w http.ResponseWriter, r *http.Request) {
	game := r.URL.Query().Get("game")
	limit := atoiDefault(r.URL.Query().Get("limit"), 50)

	txs, err := a.TxLog.ListTransactions(r.Context(), game, limit)
	if err != nil {
		a.Logger.Error("Failed to list transactions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list transactions")
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"total":        len(txs),
	})
}
