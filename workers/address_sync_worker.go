package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"pool-gamification-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddressSyncClient pulls payout-address changes from the pool's
// account service into the local MinerAddress mirror, which the trigger
// engine uses to resolve stream payloads to users.
type AddressSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewAddressSyncClient(db *gorm.DB) *AddressSyncClient {
	baseURL := os.Getenv("ACCOUNT_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("ACCOUNT_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("GAMIFICATION_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("GAMIFICATION_SERVICE_TOKEN environment variable is required for address sync")
	}

	return &AddressSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *AddressSyncClient) GetChangedAddresses(ctx context.Context, since time.Time) ([]models.MinerAddress, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/addresses", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call account service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("account service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Addresses []models.MinerAddress `json:"addresses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode account service response: %w", err)
	}

	return response.Addresses, nil
}

// PollAddresses keeps the mirror fresh. On failure the sync window is
// not advanced, so the same window retries on the next tick.
func PollAddresses(ctx context.Context, client *AddressSyncClient, pollInterval time.Duration) {
	log.Println("Starting address mirror polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Address polling stopped.")
			return
		case <-ticker.C:
			tickTime := time.Now().UTC()

			addresses, err := client.GetChangedAddresses(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling addresses: %v", err)
				continue
			}

			count := len(addresses)
			if count == 0 {
				continue
			}

			if err := client.DB.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{{Name: "address"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"user_id",
						"label",
						"is_active",
						"updated_at",
					}),
				},
			).Create(&addresses).Error; err != nil {
				log.Printf("❌ Failed to upsert %d address(es): %v", count, err)
				continue
			}

			lastSyncTime = tickTime
			log.Printf("✅ Upserted %d address(es) into miner_addresses.", count)
		}
	}
}
