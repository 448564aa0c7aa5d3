package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/vnykmshr/beatflow/pkg/codec"
	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
	"github.com/vnykmshr/beatflow/pkg/common/validation"
	"github.com/vnykmshr/beatflow/pkg/config"
	"github.com/vnykmshr/beatflow/pkg/entry"
	"github.com/vnykmshr/beatflow/pkg/metrics"
)

// OptionQueue is the entry option naming the destination queue.
const OptionQueue = "queue"

// Message is the payload pushed for each dispatched entry. Args, Kwargs,
// Options and ScheduledAt are codec payloads: instants inside them are
// encoded as datetime records.
type Message struct {
	ID          string          `json:"id"`
	Task        string          `json:"task"`
	Entry       string          `json:"entry"`
	Args        json.RawMessage `json:"args"`
	Kwargs      json.RawMessage `json:"kwargs"`
	Options     json.RawMessage `json:"options"`
	ScheduledAt json.RawMessage `json:"scheduled_at"`
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	Redis   redis.UniversalClient
	Config  *config.Config
	Codec   *codec.Codec
	Logger  zerolog.Logger
	Metrics *metrics.Registry
}

// Queue pushes task messages onto Redis lists named
// KeyPrefix + "queue:" + queue.
type Queue struct {
	rdb     redis.UniversalClient
	cfg     *config.Config
	codec   *codec.Codec
	log     zerolog.Logger
	metrics *metrics.Registry
}

// NewQueue validates opts and returns a Queue.
func NewQueue(opts QueueOptions) (*Queue, error) {
	if err := validation.ValidateNotNil("dispatch", "redis", opts.Redis); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("dispatch", "config", opts.Config); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("dispatch", "codec", opts.Codec); err != nil {
		return nil, err
	}
	return &Queue{
		rdb:     opts.Redis,
		cfg:     opts.Config,
		codec:   opts.Codec,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// QueueFor returns the queue an entry is routed to: its "queue" option, or
// the configured default.
func (q *Queue) QueueFor(e *entry.Entry) string {
	if v, ok := e.Options[OptionQueue]; ok {
		if name := cast.ToString(v); name != "" {
			return name
		}
	}
	return q.cfg.DispatchQueue
}

// Dispatch publishes a message for e.
func (q *Queue) Dispatch(ctx context.Context, e *entry.Entry, scheduledAt time.Time) error {
	msg, err := q.message(e, scheduledAt)
	if err != nil {
		return fmt.Errorf("build message for %q: %w", e.Name, err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message for %q: %w", e.Name, err)
	}

	queue := q.QueueFor(e)
	key := q.cfg.QueueKey(queue)
	if err := q.rdb.LPush(ctx, key, data).Err(); err != nil {
		return bferrors.NewOperationError("dispatch", "Publish", err).WithContext(key)
	}
	q.metrics.ObservePublish(queue)
	q.log.Debug().Str("id", msg.ID).Str("task", e.Task).Str("queue", queue).Msg("task message published")
	return nil
}

func (q *Queue) message(e *entry.Entry, scheduledAt time.Time) (*Message, error) {
	args, err := q.codec.EncodePayload(e.Args)
	if err != nil {
		return nil, err
	}
	kwargs, err := q.codec.EncodePayload(orEmpty(e.Kwargs))
	if err != nil {
		return nil, err
	}
	options, err := q.codec.EncodePayload(orEmpty(e.Options))
	if err != nil {
		return nil, err
	}
	at, err := q.codec.EncodeInstant(scheduledAt)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:          uuid.NewString(),
		Task:        e.Task,
		Entry:       e.Name,
		Args:        args,
		Kwargs:      kwargs,
		Options:     options,
		ScheduledAt: at,
	}, nil
}

// Call is a decoded Message.
type Call struct {
	ID          string
	Task        string
	Entry       string
	Args        []any
	Kwargs      map[string]any
	Options     map[string]any
	ScheduledAt time.Time
}

// DecodeMessage parses a message pushed by Queue.
func DecodeMessage(cd *codec.Codec, data []byte) (*Call, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	call := &Call{ID: msg.ID, Task: msg.Task, Entry: msg.Entry}

	args, err := cd.DecodePayload(msg.Args)
	if err != nil {
		return nil, err
	}
	if args != nil {
		if call.Args, err = cast.ToSliceE(args); err != nil {
			return nil, fmt.Errorf("decode message args: %w", err)
		}
	}
	if call.Kwargs, err = decodeMap(cd, msg.Kwargs); err != nil {
		return nil, fmt.Errorf("decode message kwargs: %w", err)
	}
	if call.Options, err = decodeMap(cd, msg.Options); err != nil {
		return nil, fmt.Errorf("decode message options: %w", err)
	}
	if call.ScheduledAt, err = cd.DecodeInstant(msg.ScheduledAt); err != nil {
		return nil, err
	}
	return call, nil
}

func decodeMap(cd *codec.Codec, raw json.RawMessage) (map[string]any, error) {
	v, err := cd.DecodePayload(raw)
	if err != nil || v == nil {
		return map[string]any{}, err
	}
	return cast.ToStringMapE(v)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
