package export

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCommander is the subset of the go-redis client used for publishing.
type RedisCommander interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// RedisSink publishes each run on Channel and keeps the latest ListLimit
// runs in a list under the same key. A zero ListLimit disables the list.
type RedisSink struct {
	Client    RedisCommander
	Channel   string
	ListLimit int64
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func (s RedisSink) Name() string {
	return "redis"
}

func (s RedisSink) Write(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(newRunMessage(rec))
	if err != nil {
		return fmt.Errorf("encode run message: %w", err)
	}

	if err := s.Client.Publish(ctx, s.Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish run: %w", err)
	}
	if s.ListLimit <= 0 {
		return nil
	}
	if err := s.Client.LPush(ctx, s.Channel, payload).Err(); err != nil {
		return fmt.Errorf("push run: %w", err)
	}
	if err := s.Client.LTrim(ctx, s.Channel, 0, s.ListLimit-1).Err(); err != nil {
		return fmt.Errorf("trim run list: %w", err)
	}

	return nil
}

type runMessage struct {
	RunID           string          `json:"run_id"`
	Port            string          `json:"port"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	Spectra         uint16          `json:"spectra"`
	FrequencyPoints int             `json:"frequency_points"`
	Expected        int             `json:"expected"`
	Received        int             `json:"received"`
	TimedOut        bool            `json:"timed_out"`
	Results         []resultMessage `json:"results"`
}

type resultMessage struct {
	FrequencyID uint16    `json:"frequency_id"`
	Real        jsonFloat `json:"real"`
	Imaginary   jsonFloat `json:"imaginary"`
}

// jsonFloat encodes NaN and infinities as null, which encoding/json rejects otherwise.
type jsonFloat float32

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}

	return strconv.AppendFloat(nil, v, 'g', -1, 32), nil
}

func newRunMessage(rec Record) runMessage {
	r := rec.Report
	msg := runMessage{
		RunID:           r.RunID.String(),
		Port:            rec.Port,
		StartedAt:       r.StartedAt.UTC(),
		FinishedAt:      r.FinishedAt.UTC(),
		Spectra:         r.Spectra,
		FrequencyPoints: r.FrequencyPoints,
		Expected:        r.Expected,
		Received:        r.Received(),
		TimedOut:        r.TimedOut,
		Results:         make([]resultMessage, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		msg.Results = append(msg.Results, resultMessage{
			FrequencyID: res.FrequencyID,
			Real:        jsonFloat(res.Real),
			Imaginary:   jsonFloat(res.Imaginary),
		})
	}

	return msg
}
