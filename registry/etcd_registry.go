// etcd-backed Registry.
//
//	Key:   /corelink/{device}/{addr}
//	Value: JSON-encoded Endpoint
//
// Registration uses TTL leases with background KeepAlive: if the announcing
// bridge crashes, its lease expires and the entry vanishes on its own, so
// hosts never resolve a dead controller.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyPrefix = "/corelink/"

// EtcdRegistry implements Registry on an etcd v3 cluster.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdRegistry connects to the given etcd endpoints. logger may be nil.
func NewEtcdRegistry(endpoints []string, logger *zap.Logger) (*EtcdRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register announces ep for device under a TTL lease and keeps the lease
// alive in the background.
func (r *EtcdRegistry) Register(device string, ep Endpoint, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, keyPrefix+device+"/"+ep.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	// Drain KeepAlive responses so the channel never fills up.
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes one endpoint of device.
func (r *EtcdRegistry) Deregister(device string, addr string) error {
	_, err := r.client.Delete(context.TODO(), keyPrefix+device+"/"+addr)
	return err
}

// Discover returns every endpoint currently registered for device.
func (r *EtcdRegistry) Discover(device string) ([]Endpoint, error) {
	resp, err := r.client.Get(context.TODO(), keyPrefix+device+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	eps := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue // skip malformed entries
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// Watch re-fetches and emits the endpoint list on every change under the
// device's prefix (etcd server-push, no polling).
func (r *EtcdRegistry) Watch(device string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	go func() {
		watchChan := r.client.Watch(context.TODO(), keyPrefix+device+"/", clientv3.WithPrefix())
		for range watchChan {
			eps, _ := r.Discover(device)
			ch <- eps
		}
	}()
	return ch
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
