package services

import (
	"testing"

	"pool-gamification-system/models"
)

func TestPendingAndAcknowledge(t *testing.T) {
	db, xp, _, _ := newTestServices(t)
	celebrations := NewCelebrationService(db)

	// Level up to create a pending level celebration.
	if _, err := xp.Grant("user-1", 120, "test", "", "", "k1"); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	pending, err := celebrations.PendingForUser("user-1")
	if err != nil {
		t.Fatalf("PendingForUser failed: %v", err)
	}
	levels, ok := pending["levels"].([]models.LevelCelebration)
	if !ok || len(levels) != 1 {
		t.Fatalf("expected one pending level celebration, got %v", pending["levels"])
	}

	if err := celebrations.Acknowledge("user-1", "level", levels[0].ID); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	// Second ack is a no-op, not an error.
	if err := celebrations.Acknowledge("user-1", "level", levels[0].ID); err != nil {
		t.Fatalf("repeat Acknowledge failed: %v", err)
	}

	pending, err = celebrations.PendingForUser("user-1")
	if err != nil {
		t.Fatalf("PendingForUser failed: %v", err)
	}
	if levels := pending["levels"].([]models.LevelCelebration); len(levels) != 0 {
		t.Errorf("expected no pending celebrations after ack, got %d", len(levels))
	}
}

func TestAcknowledgeUnknownKind(t *testing.T) {
	db, _, _, _ := newTestServices(t)
	celebrations := NewCelebrationService(db)

	if err := celebrations.Acknowledge("user-1", "confetti", "some-id"); err == nil {
		t.Fatal("expected error for unknown celebration kind")
	}
}

func TestAcknowledgeWrongUser(t *testing.T) {
	db, xp, _, _ := newTestServices(t)
	celebrations := NewCelebrationService(db)

	if _, err := xp.Grant("user-1", 120, "test", "", "", "k1"); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	pending, _ := celebrations.PendingForUser("user-1")
	levels := pending["levels"].([]models.LevelCelebration)

	// Another user cannot consume someone else's celebration.
	if err := celebrations.Acknowledge("user-2", "level", levels[0].ID); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	pending, _ = celebrations.PendingForUser("user-1")
	if levels := pending["levels"].([]models.LevelCelebration); len(levels) != 1 {
		t.Error("celebration consumed by the wrong user")
	}
}
