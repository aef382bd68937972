package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/apiconfig"
	"github.com/park285/winchance-agent/internal/domain"
	"github.com/park285/winchance-agent/pkg/battledto"
)

// PlayerSource reports the logged-in account, or nil while the host has
// not created the player entity yet.
type PlayerSource = func(ctx context.Context) (*domain.PlayerInfo, error)

var knownRealms = map[string]string{"RU": "RU", "EU": "EU", "NA": "NA", "ASIA": "ASIA"}

// TestConnection probes /api/health. 401 counts as reachable: the server
// answered and merely wants a token.
func (c *Client) TestConnection(ctx context.Context) bool {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + pathHealth)

	if err := c.http.DoDeadline(req, resp, computeDeadline(ctx, c.healthTimeout)); err != nil {
		c.logger.Warn("api_unreachable", zap.String("url", c.baseURL), zap.Error(err))
		return false
	}
	switch status := resp.StatusCode(); status {
	case fasthttp.StatusOK, fasthttp.StatusUnauthorized:
		c.logger.Info("api_reachable", zap.Int("status", status))
		return true
	default:
		c.logger.Warn("api_unexpected_status", zap.Int("status", status))
		return false
	}
}

// Register exchanges the account identity for a token and persists it.
func (c *Client) Register(ctx context.Context, info domain.PlayerInfo) (string, error) {
	region := c.cfg.Get().Region
	if r, ok := knownRealms[strings.ToUpper(strings.TrimSpace(info.Realm))]; ok {
		region = r
	}
	body, err := json.Marshal(battledto.RegisterRequest{AccountID: info.AccountID, Nickname: info.Nickname, Region: region})
	if err != nil {
		return "", fmt.Errorf("marshal register: %w", err)
	}
	status, raw, err := c.post(ctx, pathRegister, body, "")
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("register failed: status=%d body=%s", status, truncate(string(raw), 256))
	}
	var out battledto.RegisterResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode register: %w", err)
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", ErrNoToken
	}
	if err := c.cfg.Update(func(cfg *apiconfig.Config) {
		cfg.Token = out.Token
		cfg.AccountID = info.AccountID
		cfg.Nickname = info.Nickname
		cfg.Region = region
	}); err != nil {
		c.logger.Warn("api_config_not_persisted", zap.Error(err))
	}
	c.logger.Info("api_registered", zap.Int64("account_id", info.AccountID), zap.String("nickname", info.Nickname), zap.String("region", region))
	return out.Token, nil
}

// CheckAndRegister reports whether deliveries can be authorized, registering
// first when no token is stored yet.
func (c *Client) CheckAndRegister(ctx context.Context, player PlayerSource) bool {
	cfg := c.cfg.Get()
	if !cfg.Enabled {
		c.logger.Info("api_disabled")
		return false
	}
	if cfg.HasToken() {
		c.logger.Info("api_token_present", zap.Int64("account_id", cfg.AccountID))
		return true
	}
	if player == nil {
		return false
	}
	info, err := player(ctx)
	if err != nil || info == nil || info.AccountID == 0 {
		c.logger.Info("api_registration_postponed", zap.Error(err))
		return false
	}
	if _, err := c.Register(ctx, *info); err != nil {
		c.logger.Error("api_registration_failed", zap.Error(err))
		return false
	}
	return true
}
