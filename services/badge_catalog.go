package services

import (
	"encoding/json"
	"fmt"
	"log"

	"pool-gamification-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func thresholdConfig(threshold float64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"threshold": %g}`, threshold))
}

func eventConfig(event string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"event": %q}`, event))
}

// DefaultBadgeCatalog is the stock badge set seeded at boot. Slugs are
// stable identifiers shared with clients — never regenerate them from
// names after the first release.
var DefaultBadgeCatalog = []models.BadgeDefinition{
	{Slug: "first_share", Name: "First Share", Description: "Submitted your first share", Category: "shares", Rarity: "common", XPReward: 50, TriggerType: models.TriggerShareCount, TriggerConfig: thresholdConfig(1)},
	{Slug: "shares_100", Name: "Century Club", Description: "100 shares submitted", Category: "shares", Rarity: "common", XPReward: 100, TriggerType: models.TriggerShareCount, TriggerConfig: thresholdConfig(100)},
	{Slug: "shares_1000", Name: "Kilo Miner", Description: "1,000 shares submitted", Category: "shares", Rarity: "rare", XPReward: 150, TriggerType: models.TriggerShareCount, TriggerConfig: thresholdConfig(1000)},
	{Slug: "shares_10000", Name: "Share Machine", Description: "10,000 shares submitted", Category: "shares", Rarity: "rare", XPReward: 250, TriggerType: models.TriggerShareCount, TriggerConfig: thresholdConfig(10000)},
	{Slug: "shares_100000", Name: "Hash Veteran", Description: "100,000 shares submitted", Category: "shares", Rarity: "epic", XPReward: 500, TriggerType: models.TriggerShareCount, TriggerConfig: thresholdConfig(100000)},

	{Slug: "diff_1k", Name: "Warming Up", Description: "Best difficulty over 1K", Category: "difficulty", Rarity: "common", XPReward: 50, TriggerType: models.TriggerBestDifficulty, TriggerConfig: thresholdConfig(1e3)},
	{Slug: "diff_1m", Name: "Megahash Moment", Description: "Best difficulty over 1M", Category: "difficulty", Rarity: "rare", XPReward: 100, TriggerType: models.TriggerBestDifficulty, TriggerConfig: thresholdConfig(1e6)},
	{Slug: "diff_1b", Name: "Billion Club", Description: "Best difficulty over 1B", Category: "difficulty", Rarity: "epic", XPReward: 250, TriggerType: models.TriggerBestDifficulty, TriggerConfig: thresholdConfig(1e9)},
	{Slug: "diff_1t", Name: "Terra Incognita", Description: "Best difficulty over 1T", Category: "difficulty", Rarity: "legendary", XPReward: 500, TriggerType: models.TriggerBestDifficulty, TriggerConfig: thresholdConfig(1e12)},

	{Slug: "block_finder", Name: "Block Finder", Description: "Found a block", Category: "blocks", Rarity: "legendary", XPReward: 1000, TriggerType: models.TriggerBlocksFound, TriggerConfig: thresholdConfig(1)},
	{Slug: "block_finder_5", Name: "Serial Block Finder", Description: "Found five blocks", Category: "blocks", Rarity: "legendary", XPReward: 2500, TriggerType: models.TriggerBlocksFound, TriggerConfig: thresholdConfig(5)},

	{Slug: "streak_4", Name: "Month of Mondays", Description: "Four consecutive weekly streaks", Category: "streaks", Rarity: "rare", XPReward: 100, TriggerType: models.TriggerStreak, TriggerConfig: thresholdConfig(4)},
	{Slug: "streak_12", Name: "Quarter Grinder", Description: "Twelve consecutive weekly streaks", Category: "streaks", Rarity: "epic", XPReward: 250, TriggerType: models.TriggerStreak, TriggerConfig: thresholdConfig(12)},
	{Slug: "streak_52", Name: "Year-Round Miner", Description: "A full year of weekly streaks", Category: "streaks", Rarity: "legendary", XPReward: 1000, TriggerType: models.TriggerStreak, TriggerConfig: thresholdConfig(52)},

	{Slug: "wallet_linked", Name: "Plugged In", Description: "Linked a payout wallet", Category: "account", Rarity: "common", XPReward: 25, TriggerType: models.TriggerEvent, TriggerConfig: eventConfig("wallet_linked")},
}

// SeedBadges upserts the stock catalog (existing rows win — admin edits
// are never overwritten on restart).
func SeedBadges(db *gorm.DB) error {
	defs := make([]models.BadgeDefinition, len(DefaultBadgeCatalog))
	copy(defs, DefaultBadgeCatalog)
	for i := range defs {
		defs[i].IsActive = true
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&defs).Error; err != nil {
		return fmt.Errorf("failed to seed badge catalog: %w", err)
	}

	log.Printf("🎖️  Badge catalog seeded (%d stock definitions)", len(defs))
	return nil
}
