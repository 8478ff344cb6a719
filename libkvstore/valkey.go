// Package libkvstore wraps a Valkey connection behind a small executor
// interface. The orchestrator uses it for the activity log, not for
// primary state.
package libkvstore

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/valkey-io/valkey-go"
)

var ErrNotFound = errors.New("libkv: key not found")

// Config holds the Valkey connection settings.
type Config struct {
	KVAddr     string
	KVPassword string
}

// KVManager owns the client connection and hands out executors.
type KVManager interface {
	Executor(ctx context.Context) (KVExec, error)
	Close() error
}

// KVExec is the command surface the rest of the codebase uses.
type KVExec interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)

	ListPush(ctx context.Context, key string, value []byte) error
	ListRPop(ctx context.Context, key string) ([]byte, error)
	ListRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	ListLength(ctx context.Context, key string) (int64, error)
	ListTrim(ctx context.Context, key string, start, stop int64) error

	SetAdd(ctx context.Context, key string, member []byte) error
	SetMembers(ctx context.Context, key string) ([][]byte, error)
}

type manager struct {
	client valkey.Client
}

// NewManager connects to Valkey at cfg.KVAddr. dialTimeout bounds the initial
// TCP dial.
func NewManager(cfg Config, dialTimeout time.Duration) (KVManager, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.KVAddr},
		Password:    cfg.KVPassword,
		Dialer:      net.Dialer{Timeout: dialTimeout},
	})
	if err != nil {
		return nil, err
	}
	return &manager{client: client}, nil
}

func (m *manager) Executor(ctx context.Context) (KVExec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &executor{client: m.client}, nil
}

func (m *manager) Close() error {
	m.client.Close()
	return nil
}

type executor struct {
	client valkey.Client
}

func (e *executor) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := e.client.Do(ctx, e.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (e *executor) Set(ctx context.Context, key string, value []byte) error {
	return e.client.Do(ctx, e.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Build()).Error()
}

func (e *executor) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return e.client.Do(ctx, e.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Ex(ttl).Build()).Error()
}

func (e *executor) Exists(ctx context.Context, key string) (bool, error) {
	n, err := e.client.Do(ctx, e.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (e *executor) Delete(ctx context.Context, key string) error {
	return e.client.Do(ctx, e.client.B().Del().Key(key).Build()).Error()
}

func (e *executor) Keys(ctx context.Context, pattern string) ([]string, error) {
	return e.client.Do(ctx, e.client.B().Keys().Pattern(pattern).Build()).AsStrSlice()
}

func (e *executor) ListPush(ctx context.Context, key string, value []byte) error {
	return e.client.Do(ctx, e.client.B().Lpush().Key(key).Element(valkey.BinaryString(value)).Build()).Error()
}

func (e *executor) ListRPop(ctx context.Context, key string) ([]byte, error) {
	b, err := e.client.Do(ctx, e.client.B().Rpop().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (e *executor) ListRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	items, err := e.client.Do(ctx, e.client.B().Lrange().Key(key).Start(start).Stop(stop).Build()).AsStrSlice()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(items))
	for i, s := range items {
		out[i] = []byte(s)
	}
	return out, nil
}

func (e *executor) ListLength(ctx context.Context, key string) (int64, error) {
	return e.client.Do(ctx, e.client.B().Llen().Key(key).Build()).AsInt64()
}

func (e *executor) ListTrim(ctx context.Context, key string, start, stop int64) error {
	return e.client.Do(ctx, e.client.B().Ltrim().Key(key).Start(start).Stop(stop).Build()).Error()
}

func (e *executor) SetAdd(ctx context.Context, key string, member []byte) error {
	return e.client.Do(ctx, e.client.B().Sadd().Key(key).Member(valkey.BinaryString(member)).Build()).Error()
}

func (e *executor) SetMembers(ctx context.Context, key string) ([][]byte, error) {
	items, err := e.client.Do(ctx, e.client.B().Smembers().Key(key).Build()).AsStrSlice()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(items))
	for i, s := range items {
		out[i] = []byte(s)
	}
	return out, nil
}
