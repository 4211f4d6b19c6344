package realtime

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

// channelTopics maps each coarse publish channel onto its delivery
// topic. Per-user channels are matched by prefix instead.
var channelTopics = map[string]string{
	"events:mining":       "mining",
	"events:dashboard":    "dashboard",
	"events:gamification": "gamification",
	"events:competition":  "competition",
}

const userChannelPrefix = "notifications:user:"

// Bridge subscribes to the emitter's pub/sub channels and translates
// each message into the Manager's topic model. It never crashes on bad
// input: invalid JSON and unknown channels are dropped with a log line.
type Bridge struct {
	Client  *redis.Client
	Manager *Manager
}

func NewBridge(client *redis.Client, manager *Manager) *Bridge {
	return &Bridge{Client: client, Manager: manager}
}

// Run blocks on the subscription until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	channels := make([]string, 0, len(channelTopics))
	for ch := range channelTopics {
		channels = append(channels, ch)
	}

	pubsub := b.Client.Subscribe(ctx, channels...)
	defer pubsub.Close()
	if err := pubsub.PSubscribe(ctx, userChannelPrefix+"*"); err != nil {
		return err
	}

	log.Printf("🌉 PubSub bridge subscribed: %v + %s*", channels, userChannelPrefix)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Println("🌉 PubSub bridge stopping")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.HandleMessage(msg.Channel, []byte(msg.Payload))
		}
	}
}

// HandleMessage routes one inbound pub/sub message. Exposed for tests.
func (b *Bridge) HandleMessage(channel string, payload []byte) {
	var data map[string]interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		log.Printf("⚠️  Dropping invalid JSON on %s: %v", channel, err)
		return
	}

	if strings.HasPrefix(channel, userChannelPrefix) {
		userID := strings.TrimPrefix(channel, userChannelPrefix)
		topic, _ := data["type"].(string)
		if !KnownTopics[topic] {
			log.Printf("⚠️  Dropping message with unknown topic %q on %s", topic, channel)
			return
		}
		b.Manager.SendToUser(userID, topic, envelope(topic, data))
		return
	}

	topic, ok := channelTopics[channel]
	if !ok {
		log.Printf("⚠️  Dropping message on unmapped channel %s", channel)
		return
	}
	b.Manager.Broadcast(topic, envelope(topic, data))
}

// envelope wraps a payload in the bridge→session wire format.
func envelope(topic string, data map[string]interface{}) []byte {
	out, _ := json.Marshal(map[string]interface{}{
		"channel": topic,
		"data":    data,
	})
	return out
}
