// Package telemetry mirrors a link engine's status to Redis and lets
// its command() surface be driven remotely, the way the teacher
// service mirrors scooter state into Redis for a fleet of processes
// to observe without polling each one directly.
package telemetry

import (
	"context"
	"fmt"
	"log"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// Publisher wraps a go-redis client scoped to one node's telemetry.
type Publisher struct {
	client *redis.Client
	ctx    context.Context
	nodeID string
}

// New connects to addr and scopes all keys/channels to nodeID.
func New(addr, password string, db int, nodeID string) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to redis: %w", err)
	}

	return &Publisher{client: client, ctx: ctx, nodeID: nodeID}, nil
}

// Close releases the underlying Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) statusKey() string { return "link:" + p.nodeID }
func (p *Publisher) cmdChannel() string { return "link:" + p.nodeID + ":cmd" }

// PublishStatus writes the current status code into a Redis hash and
// publishes it on the same key's channel, mirroring the teacher's
// WriteAndPublishInt pattern so a fleet dashboard can subscribe rather
// than poll.
func (p *Publisher) PublishStatus(status int32) error {
	pipe := p.client.Pipeline()
	pipe.HSet(p.ctx, p.statusKey(), "status", status)
	pipe.Publish(p.ctx, p.statusKey(), fmt.Sprintf("status:%d", status))
	_, err := pipe.Exec(p.ctx)
	return err
}

// commandEnvelope is the CBOR-encoded message carried on cmdChannel,
// grounded in the teacher's CBOR message framing for the nRF52 link.
type commandEnvelope struct {
	Cmd int32 `cbor:"cmd"`
	Val int32 `cbor:"val"`
}

// EncodeCommand CBOR-encodes a (cmd, val) pair for publication on the
// command channel, e.g. from an external control-plane tool.
func EncodeCommand(cmd, val int32) ([]byte, error) {
	return cbor.Marshal(commandEnvelope{Cmd: cmd, Val: val})
}

func decodeCommand(payload []byte) (commandEnvelope, error) {
	var env commandEnvelope
	err := cbor.Unmarshal(payload, &env)
	return env, err
}

// WatchCommands subscribes to this node's command channel and invokes
// apply for every well-formed CBOR command envelope received. It runs
// until ctx is canceled. Malformed envelopes are logged and dropped —
// they never stop the watch loop.
func (p *Publisher) WatchCommands(ctx context.Context, apply func(cmd, val int32)) {
	pubsub := p.client.Subscribe(ctx, p.cmdChannel())
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, err := decodeCommand([]byte(msg.Payload))
			if err != nil {
				log.Printf("telemetry: discarding malformed command envelope: %v", err)
				continue
			}
			apply(env.Cmd, env.Val)
		}
	}
}
