package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"scraperhub/internal/security"
)

type keyGenerateRequest struct {
	Name          string `json:"name"`
	ExpiresInDays int    `json:"expires_in_days"`
}

type keyGenerateResponse struct {
	Name         string     `json:"name"`
	KeyPlain     string     `json:"key_plain"`
	KeyEncrypted string     `json:"key_encrypted"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

type keyEncryptRequest struct {
	PlainKey string `json:"plain_key"`
}

type keyDecryptRequest struct {
	EncryptedKey string `json:"encrypted_key"`
}

type keyValidateRequest struct {
	APIKey    string `json:"api_key"`
	Encrypted *bool  `json:"encrypted"`
}

type keyRevokeRequest struct {
	PlainKey string `json:"plain_key"`
}

// keyGenerate mints a new API key and registers it with the validator.
// The plain key is returned exactly once; the encrypted form is what
// goes into the X-API-Key header.
func (a *API) keyGenerate(w http.ResponseWriter, r *http.Request) {
	var req keyGenerateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if req.Name == "" || len(req.Name) > 100 {
		writeError(w, http.StatusBadRequest, "validation_error", "name must be 1 to 100 characters")
		return
	}
	if req.ExpiresInDays < 0 || req.ExpiresInDays > 365 {
		writeError(w, http.StatusBadRequest, "validation_error", "expires_in_days must be 1 to 365")
		return
	}

	plain, encrypted, err := a.Keys.Register(req.Name)
	if err != nil {
		a.Logger.Error("Failed to generate API key", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to generate API key")
		return
	}

	resp := keyGenerateResponse{
		Name:         req.Name,
		KeyPlain:     plain,
		KeyEncrypted: encrypted,
		CreatedAt:    time.Now().UTC(),
	}
	if req.ExpiresInDays > 0 {
		expires := resp.CreatedAt.AddDate(0, 0, req.ExpiresInDays)
		resp.ExpiresAt = &expires
	}

	a.Logger.Info("API key generated", zap.String("name", req.Name))
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) keyEncrypt(w http.ResponseWriter, r *http.Request) {
	var req keyEncryptRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if req.PlainKey == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "plain_key is required")
		return
	}

	encrypted, err := security.EncryptAPIKey(req.PlainKey, a.Cfg.SecretKey)
	if err != nil {
		a.Logger.Error("Failed to encrypt API key", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to encrypt API key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"plain_key":     req.PlainKey,
		"encrypted_key": encrypted,
	})
}

func (a *API) keyDecrypt(w http.ResponseWriter, r *http.Request) {
	var req keyDecryptRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	decrypted, err := security.DecryptAPIKey(req.EncryptedKey, a.Cfg.SecretKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "decryption_failed",
			"Failed to decrypt API key. It may be invalid or corrupted.")
		return
	}

	valid, _ := a.Keys.ValidateKey(decrypted, false)
	writeJSON(w, http.StatusOK, map[string]any{
		"decrypted_key": decrypted,
		"is_valid":      valid,
	})
}

func (a *API) keyValidate(w http.ResponseWriter, r *http.Request) {
	var req keyValidateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	encrypted := true
	if req.Encrypted != nil {
		encrypted = *req.Encrypted
	}
	keyType := "encrypted"
	if !encrypted {
		keyType = "plain"
	}

	valid, _ := a.Keys.ValidateKey(req.APIKey, encrypted)
	writeJSON(w, http.StatusOK, map[string]any{
		"is_valid": valid,
		"key_type": keyType,
	})
}

func (a *API) keyRevoke(w http.ResponseWriter, r *http.Request) {
	var req keyRevokeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	if a.Keys.Revoke(req.PlainKey) {
		a.Logger.Info("API key revoked")
	}
	writeSuccess(w, "API key revoked successfully")
}
