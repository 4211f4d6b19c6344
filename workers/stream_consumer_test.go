package workers

import (
	"context"
	"errors"
	"testing"

	"pool-gamification-system/models"

	"github.com/redis/go-redis/v9"
)

// fakeStreamClient is an in-memory stand-in for the consumer-group
// protocol: fresh records go out once via XReadGroup and move to the
// pending set; XAutoClaim hands pending records back; XAck removes them.
type fakeStreamClient struct {
	fresh   map[string][]redis.XMessage
	pending map[string][]redis.XMessage
	acked   map[string][]string
	groups  map[string]bool
	closed  bool
}

func newFakeStreamClient() *fakeStreamClient {
	return &fakeStreamClient{
		fresh:   map[string][]redis.XMessage{},
		pending: map[string][]redis.XMessage{},
		acked:   map[string][]string{},
		groups:  map[string]bool{},
	}
}

func (f *fakeStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	key := stream + "/" + group
	if f.groups[key] {
		cmd.SetErr(errors.New("BUSYGROUP Consumer Group name already exists"))
		return cmd
	}
	f.groups[key] = true
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeStreamClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	cmd := redis.NewXStreamSliceCmd(ctx)
	var out []redis.XStream
	for stream, msgs := range f.fresh {
		if len(msgs) == 0 {
			continue
		}
		out = append(out, redis.XStream{Stream: stream, Messages: msgs})
		f.pending[stream] = append(f.pending[stream], msgs...)
		f.fresh[stream] = nil
	}
	if len(out) == 0 {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(out)
	return cmd
}

func (f *fakeStreamClient) XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd {
	cmd := redis.NewXAutoClaimCmd(ctx)
	msgs := append([]redis.XMessage(nil), f.pending[a.Stream]...)
	cmd.SetVal(msgs, "0-0")
	return cmd
}

func (f *fakeStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	for _, id := range ids {
		f.acked[stream] = append(f.acked[stream], id)
		kept := f.pending[stream][:0]
		for _, msg := range f.pending[stream] {
			if msg.ID != id {
				kept = append(kept, msg)
			}
		}
		f.pending[stream] = kept
	}
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeStreamClient) Close() error {
	f.closed = true
	return nil
}

// scriptedDispatcher fails while fail is set and records every claim.
type scriptedDispatcher struct {
	fail  bool
	calls []string
}

func (d *scriptedDispatcher) Evaluate(streamName, eventID string, env *models.EventEnvelope) ([]string, error) {
	d.calls = append(d.calls, eventID)
	if d.fail {
		return nil, errors.New("database unavailable")
	}
	return nil, nil
}

func shareRecord(id string) redis.XMessage {
	return redis.XMessage{
		ID:     id,
		Values: map[string]interface{}{"payload": `{"event":"share_submitted","ts":1756300000,"source":"pool","data":{}}`},
	}
}

func TestHandleRecordAcksOnSuccess(t *testing.T) {
	client := newFakeStreamClient()
	dispatch := &scriptedDispatcher{}
	c := NewStreamConsumer(client, "gamification", "c1", []string{"mining:shares"}, dispatch)
	client.pending["mining:shares"] = []redis.XMessage{shareRecord("1-0")}

	c.handleRecord(context.Background(), "mining:shares", shareRecord("1-0"))

	if len(dispatch.calls) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(dispatch.calls))
	}
	if len(client.acked["mining:shares"]) != 1 {
		t.Fatalf("expected record acked, got %v", client.acked)
	}
}

func TestHandleRecordLeavesFailedDispatchUnacked(t *testing.T) {
	client := newFakeStreamClient()
	dispatch := &scriptedDispatcher{fail: true}
	c := NewStreamConsumer(client, "gamification", "c1", []string{"mining:shares"}, dispatch)
	client.pending["mining:shares"] = []redis.XMessage{shareRecord("1-0")}

	c.handleRecord(context.Background(), "mining:shares", shareRecord("1-0"))

	if len(client.acked["mining:shares"]) != 0 {
		t.Fatal("failed dispatch must leave the record unacked")
	}
	if len(client.pending["mining:shares"]) != 1 {
		t.Fatal("record must stay pending for redelivery")
	}
}

func TestHandleRecordAcksPoisonRecords(t *testing.T) {
	client := newFakeStreamClient()
	dispatch := &scriptedDispatcher{}
	c := NewStreamConsumer(client, "gamification", "c1", []string{"mining:shares"}, dispatch)

	poison := redis.XMessage{ID: "1-0", Values: map[string]interface{}{"payload": `{broken`}}
	client.pending["mining:shares"] = []redis.XMessage{poison}

	c.handleRecord(context.Background(), "mining:shares", poison)

	if len(dispatch.calls) != 0 {
		t.Fatal("undecodable record must not reach the dispatcher")
	}
	if len(client.acked["mining:shares"]) != 1 {
		t.Fatal("undecodable record must be acked, not retried forever")
	}
}

func TestReclaimRedeliversUnackedRecords(t *testing.T) {
	client := newFakeStreamClient()
	dispatch := &scriptedDispatcher{fail: true}
	c := NewStreamConsumer(client, "gamification", "c1", []string{"mining:shares"}, dispatch)

	// A record claimed earlier whose dispatch failed: pending, unacked.
	client.pending["mining:shares"] = []redis.XMessage{shareRecord("1-0")}

	c.reclaim(context.Background())
	if len(dispatch.calls) != 1 {
		t.Fatalf("expected reclaim to redeliver the pending record, got %d dispatches", len(dispatch.calls))
	}
	if len(client.pending["mining:shares"]) != 1 {
		t.Fatal("still-failing record must remain pending")
	}

	// Outage over: the next reclaim pass drains it.
	dispatch.fail = false
	c.reclaim(context.Background())
	if len(dispatch.calls) != 2 {
		t.Fatalf("expected a second delivery, got %d", len(dispatch.calls))
	}
	if len(client.pending["mining:shares"]) != 0 {
		t.Fatal("expected pending list drained after successful dispatch")
	}
	if len(client.acked["mining:shares"]) != 1 {
		t.Fatalf("expected one ack, got %v", client.acked)
	}
}

func TestEnsureGroupsIdempotent(t *testing.T) {
	client := newFakeStreamClient()
	c := NewStreamConsumer(client, "gamification", "c1", []string{"mining:shares", "mining:blocks"}, &scriptedDispatcher{})

	if err := c.EnsureGroups(context.Background()); err != nil {
		t.Fatalf("first EnsureGroups failed: %v", err)
	}
	// Second call hits BUSYGROUP on every stream; still fine.
	if err := c.EnsureGroups(context.Background()); err != nil {
		t.Fatalf("second EnsureGroups failed: %v", err)
	}
}
