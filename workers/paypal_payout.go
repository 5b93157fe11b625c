package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// PayPalPayoutClient issues prize transfers through the PayPal Payouts API.
// OAuth tokens are cached until shortly before expiry.
type PayPalPayoutClient struct {
	BaseURL    string
	ClientID   string
	Secret     string
	HTTPClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalPayoutClient() *PayPalPayoutClient {
	baseURL := os.Getenv("PAYPAL_API_BASE")
	if baseURL == "" {
		baseURL = "https://api-m.paypal.com"
	}
	clientID := os.Getenv("PAYPAL_CLIENT_ID")
	if clientID == "" {
		log.Fatal("PAYPAL_CLIENT_ID environment variable is required")
	}
	secret := os.Getenv("PAYPAL_CLIENT_SECRET")
	if secret == "" {
		log.Fatal("PAYPAL_CLIENT_SECRET environment variable is required")
	}

	return &PayPalPayoutClient{
		BaseURL:  baseURL,
		ClientID: clientID,
		Secret:   secret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *PayPalPayoutClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		c.BaseURL+"/v1/oauth2/token",
		bytes.NewBufferString("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.ClientID, c.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call PayPal token endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("PayPal token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode PayPal token response: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	// Renew a minute early so in-flight requests never carry a stale token
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

// Issue sends a single-item payout batch and returns the payout batch ID.
// reference doubles as PayPal's sender_item_id, so a retried batch for the
// same winner is traceable on the PayPal side.
func (c *PayPalPayoutClient) Issue(ctx context.Context, email string, amountCentimes int64, currency, reference string) (string, error) {
	accessToken, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]interface{}{
		"sender_batch_header": map[string]string{
			"sender_batch_id": reference,
			"email_subject":   "Vos gains du concours mensuel 🦖",
		},
		"items": []map[string]interface{}{
			{
				"recipient_type": "EMAIL",
				"receiver":       email,
				"sender_item_id": reference,
				"amount": map[string]string{
					"value":    fmt.Sprintf("%d.%02d", amountCentimes/100, amountCentimes%100),
					"currency": currency,
				},
				"note": "Félicitations pour votre classement !",
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		c.BaseURL+"/v1/payments/payouts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create payout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call PayPal payouts API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("PayPal payouts API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var payoutResp struct {
		BatchHeader struct {
			PayoutBatchID string `json:"payout_batch_id"`
		} `json:"batch_header"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payoutResp); err != nil {
		return "", fmt.Errorf("failed to decode PayPal payout response: %w", err)
	}
	if payoutResp.BatchHeader.PayoutBatchID == "" {
		return "", fmt.Errorf("PayPal payout response missing batch ID")
	}

	return payoutResp.BatchHeader.PayoutBatchID, nil
}
