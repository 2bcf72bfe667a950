// Package canbridge implements the CAN transport contract (C5) over a
// message-broker middleware instead of a physical bus, preserving the same
// motor_id addressing and 8-byte chunking convention so a session can run
// against a simulated or remote motor without a CAN interface. It plays the
// role the original implementation gave to a ROS topic bridge; this module
// has no ROS dependency, so it speaks the same wire tuple over Redis
// pub/sub instead.
package canbridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/greentech-robotics/mcfs/internal/fifo"
	"github.com/greentech-robotics/mcfs/pkg/metrics"
	"github.com/greentech-robotics/mcfs/pkg/transport"
)

func init() {
	transport.Register("can-bridge", func(channel string) (transport.Transport, error) {
		return New(channel)
	})
}

const chunkLen = 8

// Bridge tunnels the CAN chunking convention over two Redis channels,
// "<prefix>.tx" (this side publishes) and "<prefix>.rx" (this side
// subscribes), each message a 10-byte tuple motor_id(1) | dlc(1) | data(8).
type Bridge struct {
	client  *redis.Client
	ctx     context.Context
	cancel  context.CancelFunc
	motorID byte
	tx      string
	rx      string
	sub     *redis.PubSub
	rxq     fifo.Fifo
	wg      sync.WaitGroup
}

// New connects to a Redis broker and subscribes to the channel described by
// channel, formatted "<addr>|<prefix>|<motor_id>", e.g.
// "localhost:6379|motor5|5".
func New(channel string) (*Bridge, error) {
	parts := strings.Split(channel, "|")
	if len(parts) != 3 {
		return nil, fmt.Errorf("canbridge: channel %q must be \"addr|prefix|motor_id\"", channel)
	}
	addr, prefix, motorIDStr := parts[0], parts[1], parts[2]
	motorID, err := strconv.ParseUint(motorIDStr, 10, 6)
	if err != nil {
		return nil, fmt.Errorf("canbridge: invalid motor_id in %q: %w", channel, err)
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithCancel(context.Background())
	if err := client.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("canbridge: failed to connect to redis: %w", err)
	}

	rxChannel := prefix + ".rx"
	sub := client.Subscribe(ctx, rxChannel)

	b := &Bridge{
		client:  client,
		ctx:     ctx,
		cancel:  cancel,
		motorID: byte(motorID),
		tx:      prefix + ".tx",
		rx:      rxChannel,
		sub:     sub,
	}
	b.wg.Add(1)
	go b.readLoop()
	return b, nil
}

func (b *Bridge) readLoop() {
	defer b.wg.Done()
	ch := b.sub.Channel()
	for msg := range ch {
		payload := []byte(msg.Payload)
		if len(payload) != 2+chunkLen {
			continue
		}
		if payload[0] != b.motorID {
			continue
		}
		dlc := int(payload[1])
		if dlc > chunkLen {
			dlc = chunkLen
		}
		b.rxq.Push(payload[2 : 2+dlc])
	}
}

// Send splits data into ⌈len/8⌉ chunks and publishes one wire tuple per
// chunk to the tx channel, in order.
func (b *Bridge) Send(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	for start := 0; start < len(data); start += chunkLen {
		end := start + chunkLen
		if end > len(data) {
			end = len(data)
		}
		if err := b.publish(data[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) publish(chunk []byte) error {
	msg := make([]byte, 2+chunkLen)
	msg[0] = b.motorID
	msg[1] = byte(len(chunk))
	copy(msg[2:], chunk)
	if err := b.client.Publish(b.ctx, b.tx, msg).Err(); err != nil {
		log.Debugf("canbridge: publish failed: %v", err)
		metrics.TransportErrors.WithLabelValues("can-bridge").Inc()
		return transport.ErrTransport
	}
	return nil
}

// PollByte returns the next buffered byte, or -1 if none has arrived yet.
// Delivery is driven entirely by the background subscriber goroutine.
func (b *Bridge) PollByte() int {
	bt, ok := b.rxq.TryPop()
	if !ok {
		return -1
	}
	return int(bt)
}

// Close unsubscribes, stops the background reader, and closes the Redis
// connection.
func (b *Bridge) Close() error {
	b.cancel()
	err := b.sub.Close()
	b.wg.Wait()
	if cerr := b.client.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
