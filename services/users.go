// services/users.go
package services

import (
	"errors"

	"pool-gamification-system/models"

	"gorm.io/gorm"
)

// ResolveUserByAddress maps a payout address from a stream payload back
// to the owning user via the local MinerAddress mirror. An unknown
// address is ("", false, nil) — not an error: events for unregistered
// miners are simply no-ops for gamification.
func ResolveUserByAddress(db *gorm.DB, address string) (string, bool, error) {
	if address == "" {
		return "", false, nil
	}
	var addr models.MinerAddress
	if err := db.Where("address = ?", address).First(&addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return addr.UserID, true, nil
}
