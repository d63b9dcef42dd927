package services

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
)

// withTx runs fn inside a transaction. Any error (or panic) rolls the whole
// unit back, so multi-record mutations either fully apply or leave no trace.
func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// pairLocker serializes netting updates per ordered debtor/creditor pair.
// Operations on disjoint pairs proceed in parallel; two netting steps for the
// same pair are forced to run one after the other so neither loses the
// other's amount adjustment.
type pairLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPairLocker() *pairLocker {
	return &pairLocker{locks: make(map[string]*sync.Mutex)}
}

func pairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func (p *pairLocker) get(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.locks[key]
	if !ok {
		m = &sync.Mutex{}
		p.locks[key] = m
	}
	return m
}

// LockPairs acquires the mutexes for every (a, b) pair in a globally sorted
// order, which keeps concurrent multi-pair acquisitions deadlock-free.
// The returned func releases them all.
func (p *pairLocker) LockPairs(anchor int64, others []int64) func() {
	keys := make([]string, 0, len(others))
	seen := make(map[string]bool, len(others))
	for _, o := range others {
		k := pairKey(anchor, o)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	held := make([]*sync.Mutex, 0, len(keys))
	for _, k := range keys {
		m := p.get(k)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
