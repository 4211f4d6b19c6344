package services

import (
	"fmt"
	"log"

	"pool-gamification-system/models"

	"gorm.io/gorm"
)

// XP granted when a user finds a block, keyed by block height so a
// redelivered block_found event can never double-grant.
const BlockFoundXP = 500

// TriggerEngine maps a decoded stream event onto reward actions:
// summary counter updates, threshold badge checks, streak touches. It
// is stateless apart from the badge snapshot held by BadgeService; the
// consumer-group protocol guarantees it never sees the same record
// concurrently, only redelivered — and every grant downstream is
// idempotency-keyed to tolerate that.
type TriggerEngine struct {
	DB       *gorm.DB
	Badges   *BadgeService
	Streaks  *StreakService
	XP       *XPService
	Notifier *NotificationService
}

func NewTriggerEngine(db *gorm.DB, badges *BadgeService, streaks *StreakService, xp *XPService, notifier *NotificationService) *TriggerEngine {
	return &TriggerEngine{DB: db, Badges: badges, Streaks: streaks, XP: xp, Notifier: notifier}
}

// Evaluate processes one event: resolves the acting user, applies the
// event's mutations in a single transaction, then emits notifications
// once the commit has gone through. Returns the badge slugs newly
// awarded. Unknown users and non-qualifying shares are no-ops, never
// errors — only infrastructure failures bubble up (and cause the
// consumer to leave the record unacknowledged for redelivery).
func (e *TriggerEngine) Evaluate(streamName, eventID string, env *models.EventEnvelope) ([]string, error) {
	address := env.Address()
	userID, found, err := ResolveUserByAddress(e.DB, address)
	if err != nil {
		return nil, fmt.Errorf("address resolution failed: %w", err)
	}
	if !found {
		return nil, nil
	}

	if env.Event == models.EventShareSubmitted {
		if valid, ok := env.Data["valid"].(bool); ok && !valid {
			return nil, nil
		}
	}

	var awards []*AwardResult
	var blockRes *GrantResult
	var blockHeight int64

	err = e.DB.Transaction(func(tx *gorm.DB) error {
		sum, err := ensureSummary(tx, userID)
		if err != nil {
			return err
		}

		switch env.Event {
		case models.EventShareSubmitted:
			sum.TotalShares++
			if d := env.Difficulty(); d > sum.BestDifficulty {
				sum.BestDifficulty = d
			}
			if err := tx.Save(sum).Error; err != nil {
				return err
			}
			if err := e.Streaks.TouchWeekTx(tx, userID, env.Time(), env.Difficulty()); err != nil {
				return err
			}

		case models.EventShareBestDiff:
			if d := env.Difficulty(); d > sum.BestDifficulty {
				sum.BestDifficulty = d
				if err := tx.Save(sum).Error; err != nil {
					return err
				}
			}

		case models.EventBlockFound:
			sum.BlocksFound++
			if err := tx.Save(sum).Error; err != nil {
				return err
			}
			blockHeight = env.BlockHeight()
			res, err := e.XP.GrantTx(tx, userID, BlockFoundXP,
				"block", fmt.Sprintf("%d", blockHeight),
				fmt.Sprintf("Block found at height %d", blockHeight),
				fmt.Sprintf("block:%s:%d", userID, blockHeight))
			if err != nil {
				return err
			}
			blockRes = res
			if res.Granted {
				celebration := models.BlockCelebration{UserID: userID, BlockHeight: blockHeight}
				if v, ok := env.Data["reward"].(float64); ok {
					celebration.Reward = v
				}
				if err := tx.Create(&celebration).Error; err != nil {
					return err
				}
			}

		default:
			// Unknown event types pass through unmodified; other
			// consumer groups may care about them.
			return nil
		}

		awards, err = e.checkThresholdBadges(tx, userID, sum)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.emitResults(userID, awards, blockRes, blockHeight)

	var slugs []string
	for _, a := range awards {
		if a.Newly {
			slugs = append(slugs, a.Badge.Slug)
		}
	}
	if len(slugs) > 0 {
		log.Printf("🏅 Event %s (%s) awarded %v to %s", env.Event, eventID, slugs, userID)
	}
	return slugs, nil
}

// checkThresholdBadges runs the fixed counter-threshold table against
// the updated summary and awards everything newly satisfied.
func (e *TriggerEngine) checkThresholdBadges(tx *gorm.DB, userID string, sum *models.UserGamification) ([]*AwardResult, error) {
	var results []*AwardResult

	check := func(kind string, value float64) error {
		for _, badge := range e.Badges.badgesByKind(kind) {
			if value < badge.Trigger.Threshold {
				continue
			}
			res, err := e.Badges.AwardTx(tx, userID, badge.Def.Slug, "")
			if err != nil {
				return err
			}
			if res.Newly {
				results = append(results, res)
			}
		}
		return nil
	}

	if err := check(models.TriggerShareCount, float64(sum.TotalShares)); err != nil {
		return nil, err
	}
	if err := check(models.TriggerBestDifficulty, sum.BestDifficulty); err != nil {
		return nil, err
	}
	if err := check(models.TriggerBlocksFound, float64(sum.BlocksFound)); err != nil {
		return nil, err
	}
	return results, nil
}

// emitResults publishes everything the committed transaction produced.
// Runs strictly after the commit: durable first, realtime best-effort.
func (e *TriggerEngine) emitResults(userID string, awards []*AwardResult, blockRes *GrantResult, blockHeight int64) {
	if e.Notifier == nil {
		return
	}

	for _, award := range awards {
		if award.Newly {
			e.Badges.emitAwardNotifications(userID, award)
		}
	}

	if blockRes != nil && blockRes.Granted {
		e.Notifier.Emit(userID, models.NotificationTypeMining, "block_found",
			"You found a block! 🎉",
			fmt.Sprintf("Block at height %d credited to your account", blockHeight),
			"/blocks")
		if blockRes.LeveledUp {
			e.Notifier.Emit(userID, models.NotificationTypeGamification, "level_up",
				fmt.Sprintf("Level %d reached!", blockRes.Level.Level),
				fmt.Sprintf("You are now a %s", blockRes.Level.Title),
				"/progress")
		}
	}
}
