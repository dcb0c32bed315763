// Package discovery publishes a chat server's WebSocket address in etcd under
// a lease and lets clients look it up.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Prefix is the etcd key space holding server registrations.
const Prefix = "/groupchat/servers/"

// DialTimeout bounds the initial etcd connection.
const DialTimeout = 5 * time.Second

// ErrNoServer is returned when no registration matches a lookup.
var ErrNoServer = errors.New("discovery: no chat server registered")

// NewClient connects to the etcd cluster at endpoints.
func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: DialTimeout,
	})
}

// ServerKey returns the key a server with the given id registers under.
func ServerKey(id string) string {
	return Prefix + id
}

// Registration is a live lease-backed server entry. It disappears from etcd
// when Close is called or when the process stops renewing the lease.
type Registration struct {
	cli    *clientv3.Client
	lease  clientv3.LeaseID
	key    string
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger
}

// Register publishes addr under ServerKey(id) with a lease of ttl seconds and
// keeps the lease alive until the registration is closed.
func Register(ctx context.Context, cli *clientv3.Client, id, addr string, ttl int64, logger *zap.Logger) (*Registration, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return nil, fmt.Errorf("discovery: grant lease: %w", err)
	}

	key := ServerKey(id)
	if _, err := cli.Put(ctx, key, addr, clientv3.WithLease(lease.ID)); err != nil {
		return nil, fmt.Errorf("discovery: put %s: %w", key, err)
	}

	keepCtx, cancel := context.WithCancel(context.Background())
	responses, err := cli.KeepAlive(keepCtx, lease.ID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("discovery: keep alive: %w", err)
	}

	r := &Registration{
		cli:    cli,
		lease:  lease.ID,
		key:    key,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger,
	}
	go r.drain(responses)

	logger.Info("registered chat server",
		zap.String("key", key),
		zap.String("addr", addr),
		zap.Int64("ttl", ttl))
	return r, nil
}

// drain consumes keep-alive acks; the client stops renewing if nobody reads.
func (r *Registration) drain(responses <-chan *clientv3.LeaseKeepAliveResponse) {
	defer close(r.done)
	for range responses {
	}
	r.logger.Debug("lease keep-alive stopped", zap.String("key", r.key))
}

// Key returns the registered key.
func (r *Registration) Key() string { return r.key }

// Close stops renewing the lease and revokes it so the entry disappears now
// rather than after the TTL.
func (r *Registration) Close(ctx context.Context) error {
	r.cancel()
	<-r.done
	if _, err := r.cli.Revoke(ctx, r.lease); err != nil {
		return fmt.Errorf("discovery: revoke lease: %w", err)
	}
	r.logger.Info("deregistered chat server", zap.String("key", r.key))
	return nil
}

// Resolve returns the WebSocket address of the server registered as id, or
// of the longest-registered server when id is empty.
func Resolve(ctx context.Context, cli *clientv3.Client, id string) (string, error) {
	var (
		resp *clientv3.GetResponse
		err  error
	)
	if id != "" {
		resp, err = cli.Get(ctx, ServerKey(id))
	} else {
		resp, err = cli.Get(ctx, Prefix, clientv3.WithPrefix())
	}
	if err != nil {
		return "", fmt.Errorf("discovery: lookup: %w", err)
	}
	return pickServer(resp.Kvs)
}

// pickServer chooses the registration with the lowest create revision, so
// every client picks the same server.
func pickServer(kvs []*mvccpb.KeyValue) (string, error) {
	var best *mvccpb.KeyValue
	for _, kv := range kvs {
		if len(kv.Value) == 0 || !strings.HasPrefix(string(kv.Key), Prefix) {
			continue
		}
		if best == nil || kv.CreateRevision < best.CreateRevision {
			best = kv
		}
	}
	if best == nil {
		return "", ErrNoServer
	}
	return string(best.Value), nil
}
