// handlers/realtime_routes.go
package handlers

import (
	"pool-gamification-system/middleware"
	"pool-gamification-system/realtime"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func SetupRealtimeRoutes(app *fiber.App, manager *realtime.Manager) {
	app.Use("/ws", middleware.UserContextMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("user_id").(string)
		realtime.ServeSession(manager, conn, userID)
	}))

	app.Get("/realtime/stats", func(c *fiber.Ctx) error {
		return c.JSON(manager.Stats())
	})
}
