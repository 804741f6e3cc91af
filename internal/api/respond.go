package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"scraperhub/internal/storage"
)

// errorBody is the single error shape of the API, so clients can switch
// on the error code instead of parsing messages.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type successBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type pageBody struct {
	Items    any `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Pages    int `json:"pages"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, format string, args ...any) {
	writeJSON(w, status, errorBody{Error: code, Message: fmt.Sprintf(format, args...)})
}

func writeSuccess(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusOK, successBody{Success: true, Message: fmt.Sprintf(format, args...)})
}

func readJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// listOptions parses page, page_size, is_active and search query params.
// Values are clamped here so responses echo what was actually applied.
func listOptions(r *http.Request) storage.ListOptions {
	opts := storage.ListOptions{Page: 1, PageSize: 10}

	q := r.URL.Query()
	if page := atoiDefault(q.Get("page"), 1); page >= 1 {
		opts.Page = page
	}
	if size := atoiDefault(q.Get("page_size"), 10); size >= 1 {
		if size > 100 {
			size = 100
		}
		opts.PageSize = size
	}
	switch q.Get("is_active") {
	case "true":
		active := true
		opts.IsActive = &active
	case "false":
		active := false
		opts.IsActive = &active
	}
	opts.Search = q.Get("search")
	return opts
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func paginated(items any, total int, opts storage.ListOptions) pageBody {
	pages := 0
	if total > 0 {
		pages = (total + opts.PageSize - 1) / opts.PageSize
	}
	return pageBody{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.PageSize,
		Pages:    pages,
	}
}
