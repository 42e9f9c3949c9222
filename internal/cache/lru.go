package cache

import (
	"container/list"
	"time"
)

// lru is a size-bounded map with per-entry expiry. It is not safe for
// concurrent use; callers hold their own lock.
type lru[K comparable, V any] struct {
	capacity int
	items    map[K]*list.Element
	order    *list.List // front is most recently used

	evictions int64
}

type lruEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

func newLRU[K comparable, V any](capacity int) *lru[K, V] {
	return &lru[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
	}
}

// get returns the live value for key and marks it recently used. Expired
// entries are dropped on access.
func (l *lru[K, V]) get(key K, now time.Time) (V, bool) {
	var zero V
	elem, ok := l.items[key]
	if !ok {
		return zero, false
	}
	entry := elem.Value.(*lruEntry[K, V])
	if !now.Before(entry.expiresAt) {
		l.remove(elem)
		return zero, false
	}
	l.order.MoveToFront(elem)
	return entry.value, true
}

// put stores value until now+ttl, evicting the least recently used entries
// beyond capacity.
func (l *lru[K, V]) put(key K, value V, now time.Time, ttl time.Duration) {
	if elem, ok := l.items[key]; ok {
		entry := elem.Value.(*lruEntry[K, V])
		entry.value = value
		entry.expiresAt = now.Add(ttl)
		l.order.MoveToFront(elem)
		return
	}

	l.items[key] = l.order.PushFront(&lruEntry[K, V]{key: key, value: value, expiresAt: now.Add(ttl)})
	for l.order.Len() > l.capacity {
		l.remove(l.order.Back())
		l.evictions++
	}
}

func (l *lru[K, V]) delete(key K) {
	if elem, ok := l.items[key]; ok {
		l.remove(elem)
	}
}

func (l *lru[K, V]) len() int {
	return l.order.Len()
}

func (l *lru[K, V]) reset() {
	l.items = make(map[K]*list.Element)
	l.order.Init()
}

func (l *lru[K, V]) remove(elem *list.Element) {
	l.order.Remove(elem)
	delete(l.items, elem.Value.(*lruEntry[K, V]).key)
}
