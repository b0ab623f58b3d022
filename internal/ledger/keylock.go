package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// keyLock is a set of mutexes created on demand per key and dropped when unused.
type keyLock struct {
	mu    sync.Mutex
	slots map[common.Address]*keySlot
}

type keySlot struct {
	ch   chan struct{}
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{slots: make(map[common.Address]*keySlot)}
}

// lock blocks until key is free or ctx is done. The returned func releases it.
func (k *keyLock) lock(ctx context.Context, key common.Address) (func(), error) {
	k.mu.Lock()
	slot, ok := k.slots[key]
	if !ok {
		slot = &keySlot{ch: make(chan struct{}, 1)}
		k.slots[key] = slot
	}
	slot.refs++
	k.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			k.release(key, slot)
		})
	}, nil
}

func (k *keyLock) release(key common.Address, slot *keySlot) {
	k.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}
