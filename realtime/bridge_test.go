package realtime

import (
	"encoding/json"
	"testing"
)

func newTestBridge(t *testing.T) (*Bridge, *Manager) {
	t.Helper()
	m := NewManager()
	return NewBridge(nil, m), m
}

func lastMessage(t *testing.T, c *fakeConn) map[string]interface{} {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		t.Fatal("no message delivered")
	}
	var out map[string]interface{}
	if err := json.Unmarshal(c.messages[len(c.messages)-1], &out); err != nil {
		t.Fatalf("delivered frame is not JSON: %v", err)
	}
	return out
}

func TestHandleMessageBroadcastsCoarseChannel(t *testing.T) {
	b, m := newTestBridge(t)

	c := &fakeConn{}
	s := m.Connect(c, "user-1")
	if err := m.Subscribe(s, "mining"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	b.HandleMessage("events:mining", []byte(`{"event":"share_submitted","difficulty":500}`))

	frame := lastMessage(t, c)
	if frame["channel"] != "mining" {
		t.Errorf("expected channel mining, got %v", frame["channel"])
	}
	data, ok := frame["data"].(map[string]interface{})
	if !ok || data["event"] != "share_submitted" {
		t.Errorf("unexpected data: %v", frame["data"])
	}
}

func TestHandleMessageTargetsUserChannel(t *testing.T) {
	b, m := newTestBridge(t)

	target, bystander := &fakeConn{}, &fakeConn{}
	s1 := m.Connect(target, "user-1")
	s2 := m.Connect(bystander, "user-2")
	m.Subscribe(s1, "gamification")
	m.Subscribe(s2, "gamification")

	b.HandleMessage("notifications:user:user-1", []byte(`{"type":"gamification","subtype":"badge_earned"}`))

	if target.count() != 1 {
		t.Fatalf("expected 1 delivery to target, got %d", target.count())
	}
	if bystander.count() != 0 {
		t.Errorf("bystander received a targeted notification")
	}
	frame := lastMessage(t, target)
	if frame["channel"] != "gamification" {
		t.Errorf("expected channel gamification, got %v", frame["channel"])
	}
}

func TestHandleMessageDropsInvalidJSON(t *testing.T) {
	b, m := newTestBridge(t)

	c := &fakeConn{}
	s := m.Connect(c, "user-1")
	m.Subscribe(s, "mining")

	b.HandleMessage("events:mining", []byte(`{broken`))

	if c.count() != 0 {
		t.Errorf("invalid JSON must not be delivered, got %d frames", c.count())
	}
	if m.Stats().TotalConnections != 1 {
		t.Error("invalid JSON must not disconnect sessions")
	}
}

func TestHandleMessageDropsUnknownChannels(t *testing.T) {
	b, m := newTestBridge(t)

	c := &fakeConn{}
	s := m.Connect(c, "user-1")
	m.Subscribe(s, "mining")

	b.HandleMessage("events:unknown", []byte(`{"x":1}`))
	b.HandleMessage("notifications:user:user-1", []byte(`{"type":"bogus"}`))
	b.HandleMessage("notifications:user:user-1", []byte(`{"no_type":true}`))

	if c.count() != 0 {
		t.Errorf("expected all messages dropped, got %d frames", c.count())
	}
}
