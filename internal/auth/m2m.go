package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// GetM2MToken retrieves a client-credentials token for calls to the
// identity provider's admin API. Tokens are cached in Redis until shortly
// before expiry; pass a nil client to skip caching.
func GetM2MToken(cfg config.AuthConfig, client *http.Client, redisClient *redis.Client, log *logger.Logger) (string, error) {
	ctx := context.Background()

	if redisClient != nil {
		cache := NewRedisTokenCache(redisClient)
		if cached, err := cache.GetToken(ctx); err == nil && cached != nil {
			return cached.Token, nil
		} else if err != nil && log != nil {
			log.Warn("AUTH", fmt.Sprintf("Token cache read failed, requesting fresh token: %v", err))
		}
	}

	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", cfg.KeycloakURL, cfg.KeycloakRealm)

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", cfg.ClientID)
	data.Set("client_secret", cfg.ClientSecret)

	req, err := http.NewRequest("POST", tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		if log != nil {
			log.Error("AUTH", fmt.Sprintf("Token endpoint returned %s: %s", resp.Status, string(bodyBytes)))
		}
		return "", fmt.Errorf("failed to get token, status: %s", resp.Status)
	}

	var tokenResp models.M2MTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("error decoding token response: %w", err)
	}

	if redisClient != nil {
		cache := NewRedisTokenCache(redisClient)
		if err := cache.SetToken(ctx, tokenResp.AccessToken, tokenResp.ExpiresIn); err != nil && log != nil {
			log.Warn("AUTH", fmt.Sprintf("Failed to cache M2M token: %v", err))
		}
	}

	return tokenResp.AccessToken, nil
}
