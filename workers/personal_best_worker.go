package workers

import (
	"errors"

	"pool-gamification-system/models"

	"gorm.io/gorm"
)

// PersonalBestDispatcher feeds a second, independent consumer group
// over the same streams: it maintains per-address best-difficulty
// watermarks on the MinerAddress mirror. Its cursor is fully separate
// from the gamification group's, so neither slows the other down.
type PersonalBestDispatcher struct {
	DB *gorm.DB
}

func NewPersonalBestDispatcher(db *gorm.DB) *PersonalBestDispatcher {
	return &PersonalBestDispatcher{DB: db}
}

// Evaluate raises the address watermark when a share beats it. The
// update is a monotonic max, so redelivery is harmless here.
func (d *PersonalBestDispatcher) Evaluate(streamName, eventID string, env *models.EventEnvelope) ([]string, error) {
	if env.Event != models.EventShareSubmitted && env.Event != models.EventShareBestDiff {
		return nil, nil
	}
	address := env.Address()
	if address == "" {
		return nil, nil
	}

	var addr models.MinerAddress
	if err := d.DB.Where("address = ?", address).First(&addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // unregistered miner, nothing to track
		}
		return nil, err
	}

	updates := map[string]interface{}{"last_seen_at": env.Time()}
	if diff := env.Difficulty(); diff > addr.BestDifficulty {
		updates["best_difficulty"] = diff
	}
	if err := d.DB.Model(&addr).Updates(updates).Error; err != nil {
		return nil, err
	}
	return nil, nil
}
