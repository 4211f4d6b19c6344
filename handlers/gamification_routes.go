// handlers/gamification_routes.go
package handlers

import (
	"encoding/json"
	"strconv"
	"strings"

	"pool-gamification-system/middleware"
	"pool-gamification-system/models"
	"pool-gamification-system/services"
	"pool-gamification-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

func SetupGamificationRoutes(
	app *fiber.App,
	xp *services.XPService,
	badges *services.BadgeService,
	streaks *services.StreakService,
	notifications *services.NotificationService,
	celebrations *services.CelebrationService,
) {
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Get("/user/summary", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		sum, err := xp.GetSummary(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load summary",
				"cause": err.Error(),
			})
		}

		streak, err := streaks.GetStreak(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load streak",
				"cause": err.Error(),
			})
		}

		info := services.ComputeLevel(sum.TotalXP)
		return c.JSON(fiber.Map{
			"user_id":         sum.UserID,
			"total_xp":        sum.TotalXP,
			"level":           info.Level,
			"level_title":     info.Title,
			"xp_into_level":   info.XPIntoLevel,
			"xp_for_level":    info.XPForLevel,
			"badges_earned":   sum.BadgesEarned,
			"total_shares":    sum.TotalShares,
			"best_difficulty": sum.BestDifficulty,
			"blocks_found":    sum.BlocksFound,
			"current_streak":  streak.CurrentStreak,
			"longest_streak":  streak.LongestStreak,
			"updated_at":      sum.UpdatedAt,
		})
	})

	securedGroup.Get("/user/badges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		earned, err := badges.ListForUser(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load badges",
				"cause": err.Error(),
			})
		}
		return c.JSON(earned)
	})

	securedGroup.Get("/user/notifications", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		list, err := notifications.ListForUser(userID, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load notifications",
				"cause": err.Error(),
			})
		}
		return c.JSON(list)
	})

	securedGroup.Post("/user/notifications/:id/read", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		if err := notifications.MarkRead(userID, c.Params("id")); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to mark notification read",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"message": "OK"})
	})

	securedGroup.Get("/user/celebrations", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		pending, err := celebrations.PendingForUser(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load celebrations",
				"cause": err.Error(),
			})
		}
		return c.JSON(pending)
	})

	securedGroup.Post("/user/celebrations/:kind/:id/ack", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		if err := celebrations.Acknowledge(userID, c.Params("kind"), c.Params("id")); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "failed to acknowledge celebration",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"message": "OK"})
	})

	// Feature APIs fire named-event triggers directly — same evaluation
	// path as the stream pipeline, reused outside it.
	securedGroup.Post("/user/events/:name/check", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		awarded, err := badges.CheckEventTrigger(userID, c.Params("name"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "event trigger check failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"awarded": awarded})
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/badges", func(c *fiber.Ctx) error {
		var req struct {
			Name          string          `json:"name"`
			Description   string          `json:"description"`
			Category      string          `json:"category"`
			Rarity        string          `json:"rarity"`
			XPReward      int64           `json:"xp_reward"`
			TriggerType   string          `json:"trigger_type"`
			TriggerConfig json.RawMessage `json:"trigger_config"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.Name == "" || req.TriggerType == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name and trigger_type are required"})
		}

		def := models.BadgeDefinition{
			Slug:          strings.ReplaceAll(slug.Make(req.Name), "-", "_"),
			Name:          req.Name,
			Description:   req.Description,
			Category:      req.Category,
			Rarity:        req.Rarity,
			XPReward:      req.XPReward,
			TriggerType:   req.TriggerType,
			TriggerConfig: req.TriggerConfig,
			IsActive:      true,
		}
		if _, err := def.ParseTrigger(); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid trigger", "cause": err.Error()})
		}

		if err := badges.DB.Create(&def).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create badge", "cause": err.Error()})
		}
		if err := badges.Reload(); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "badge created but cache reload failed", "cause": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(def)
	})

	adminGroup.Post("/badges/:slug/icon", func(c *fiber.Ctx) error {
		badgeSlug := c.Params("slug")
		fileHeader, err := c.FormFile("icon")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "icon file is required"})
		}

		iconURL, err := utils.UploadBadgeIcon(fileHeader, badgeSlug)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "icon upload failed", "cause": err.Error()})
		}

		if err := badges.DB.Model(&models.BadgeDefinition{}).
			Where("slug = ?", badgeSlug).
			Update("icon_url", iconURL).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store icon URL", "cause": err.Error()})
		}
		if err := badges.Reload(); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache reload failed", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"icon_url": iconURL})
	})

	adminGroup.Post("/badges/reload", func(c *fiber.Ctx) error {
		if err := badges.Reload(); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reload failed", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "badge cache reloaded"})
	})

	adminGroup.Post("/xp/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
			XP     int64  `json:"xp"`
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.UserID == "" || req.XP <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and a positive xp are required"})
		}

		granted, err := xp.Grant(req.UserID, req.XP, "admin", "", req.Reason, "admin:"+uuid.NewString())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "XP grant failed", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "XP granted", "user_id": req.UserID, "xp": req.XP, "granted": granted})
	})
}
