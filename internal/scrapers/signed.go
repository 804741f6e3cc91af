package scrapers

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Signed family endpoints. All requests are form encoded POSTs carrying a
// requestid, a millisecond timestamp and an MD5 signature over the sorted
// parameters.
const (
	signedLoginPath    = "/fast/agent/login"
	signedCreatePath   = "/fast/user/create"
	signedBalancePath  = "/fast/user/balance"
	signedDepositPath  = "/fast/user/deposit"
	signedWithdrawPath = "/fast/user/withdrawal"
)

// signedStatus maps the vendor's numeric result codes to readable messages.
var signedStatus = map[int]string{
	200: "Success",
	1:   "New User Is Created",
	2:   "User Does Not Exist",
	3:   "Parameter Error",
	4:   "Invalid Signature or IP blocked",
	5:   "Agent Ban",
	6:   "Account length error",
	7:   "Account format error",
	8:   "Password length error",
	9:   "Password format error",
	10:  "Request ID Used",
	11:  "Unknown Database Error",
	12:  "User Already Exist",
	13:  "Top Up Fail",
	14:  "Insufficient Credit",
	15:  "Withdrawal Failed",
	16:  "Get Balance Failed",
	17:  "Operations Not Allowed In Game",
	18:  "System Under Maintenance",
	19:  "Requested Address Does Not Exist",
	20:  "Unknown Error",
}

func signedStatusMessage(code int) string {
	if msg, ok := signedStatus[code]; ok {
		return msg
	}
	return fmt.Sprintf("Status %d", code)
}

// SignedClient talks to the signed API family. Login hands back an AES
// wrapped app secret which signs every later request.
type SignedClient struct {
	site   Site
	http   *http.Client
	logger *zap.Logger

	appID        string
	appSecret    string
	agentBalance float64
}

// NewSignedClient creates a client for a signed family site.
func NewSignedClient(site Site, client *http.Client, logger *zap.Logger) *SignedClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SignedClient{site: site, http: client, logger: logger}
}

func (c *SignedClient) Site() string { return c.site.Name }

// Close drops any idle connections held for the session.
func (c *SignedClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// AgentBalance re-authenticates and reports the balance the login response
// carries for the agent account.
func (c *SignedClient) AgentBalance(ctx context.Context) Result {
	if err := c.authenticate(ctx); err != nil {
		return Errf("%v", err)
	}
	return OK("Success", map[string]any{"balance": c.agentBalance})
}

// PlayerSignup creates a player account. The password is set to the
// username, which the vendor may extend with an agent prefix.
func (c *SignedClient) PlayerSignup(ctx context.Context, fullname, requestedUsername string) Result {
	if err := c.ensureAuth(ctx); err != nil {
		return Errf("%v", err)
	}

	username := requestedUsername
	if username == "" {
		username = GenerateUsername(c.site.Initial, fullname)
	}
	password := username

	resp, err := c.post(ctx, signedCreatePath, map[string]string{
		"account": username,
		"passwd":  password,
	})
	if err != nil {
		return Errf("%v", err)
	}
	// creation reports code 1, not 200
	if resp.Code != 1 || resp.Data == nil {
		return Errf("%s", signedStatusMessage(resp.Code))
	}

	if full, ok := resp.Data["full_account"]; ok {
		if s := toString(full); s != "" {
			username = s
		}
	}
	return OK("User Signed up successfully!", map[string]any{
		"username": username,
		"password": password,
	})
}

// Recharge moves credit from the agent to a player.
func (c *SignedClient) Recharge(ctx context.Context, username string, amount float64) Result {
	return c.transact(ctx, signedDepositPath, username, amount)
}

// Redeem moves credit from a player back to the agent.
func (c *SignedClient) Redeem(ctx context.Context, username string, amount float64) Result {
	return c.transact(ctx, signedWithdrawPath, username, amount)
}

func (c *SignedClient) transact(ctx context.Context, path, username string, amount float64) Result {
	// the balance probe confirms the player exists before moving credit
	if err := c.authenticate(ctx); err != nil {
		return Errf("%v", err)
	}
	probe, err := c.post(ctx, signedBalancePath, map[string]string{"account": username})
	if err != nil {
		return Errf("%v", err)
	}
	if probe.Code != 200 {
		return Errf("%s", signedStatusMessage(probe.Code))
	}

	// the vendor only accepts whole credits
	units := int(math.Abs(amount))
	resp, err := c.post(ctx, path, map[string]string{
		"account": username,
		"amount":  strconv.Itoa(units),
	})
	if err != nil {
		return Errf("%v", err)
	}
	if resp.Code != 200 {
		return Errf("%s", signedStatusMessage(resp.Code))
	}
	return OK("Transaction successful", map[string]any{"amount": units})
}

func (c *SignedClient) ensureAuth(ctx context.Context) error {
	if c.appSecret != "" {
		return nil
	}
	return c.authenticate(ctx)
}

// authenticate logs the agent in. The login request is signed with an empty
// secret; the response carries the app id, the encrypted app secret and the
// agent balance.
func (c *SignedClient) authenticate(ctx context.Context) error {
	params := c.baseParams()
	params["account"] = c.site.Username
	params["passwd"] = c.site.Password
	params["sign"] = signParams(params, "")

	resp, err := c.send(ctx, signedLoginPath, params)
	if err != nil {
		return err
	}
	appID := toString(resp.Data["appid"])
	encrypted := toString(resp.Data["appsecret_encrypted"])
	if resp.Code != 200 || appID == "" || encrypted == "" {
		return fmt.Errorf("login failed: %s", signedStatusMessage(resp.Code))
	}

	secret, err := decryptAppSecret(encrypted, c.site.Password)
	if err != nil {
		return fmt.Errorf("failed to unwrap app secret: %w", err)
	}
	c.appID = appID
	c.appSecret = secret
	if bal, ok := toFloat(resp.Data["balance"]); ok {
		c.agentBalance = bal
	}

	c.logger.Info("Agent logged in",
		zap.String("site", c.site.Name),
		zap.String("appid", appID))
	return nil
}

// post signs params with the session app secret and sends them.
func (c *SignedClient) post(ctx context.Context, path string, extra map[string]string) (*signedResponse, error) {
	params := c.baseParams()
	if c.appID != "" {
		params["appid"] = c.appID
	}
	for k, v := range extra {
		params[k] = v
	}
	params["sign"] = signParams(params, c.appSecret)
	return c.send(ctx, path, params)
}

type signedResponse struct {
	Code int            `json:"code"`
	Msg  string         `json:"msg"`
	Data map[string]any `json:"data"`
}

func (c *SignedClient) send(ctx context.Context, path string, params map[string]string) (*signedResponse, error) {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.site.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected http status %d", resp.StatusCode)
	}

	var out signedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("Signed API call",
		zap.String("site", c.site.Name),
		zap.String("path", path),
		zap.Int("code", out.Code))
	return &out, nil
}

func (c *SignedClient) baseParams() map[string]string {
	return map[string]string{
		"requestid": newRequestID(),
		"timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
}

func newRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// signParams computes the MD5 signature: parameters sorted by key, joined as
// k=v pairs with &, with the secret appended. The sign key itself is
// excluded.
func signParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return md5hex(strings.Join(parts, "&") + secret)
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// decryptAppSecret unwraps the app secret from the login response. The blob
// is base64 with the IV in the first block; the AES-256 key is the hex MD5
// of the hex MD5 of the lower cased agent password.
func decryptAppSecret(encoded, password string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64: %w", err)
	}
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("invalid ciphertext length %d", len(data))
	}

	key := []byte(md5hex(md5hex(strings.ToLower(password))))
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to init cipher: %w", err)
	}

	iv, ciphertext := data[:aes.BlockSize], data[aes.BlockSize:]
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding byte %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("corrupt padding")
		}
	}
	return data[:len(data)-n], nil
}
