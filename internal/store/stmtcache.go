package store

import (
	"container/list"
	"database/sql"
	"sync"
)

const defaultStmtCacheSize = 32

// stmtCache is an LRU cache of prepared statements for the read
// connection. Write statements run inside transactions and are not
// cached.
type stmtCache struct {
	db  *sql.DB
	cap int

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
}

type stmtEntry struct {
	query string
	stmt  *sql.Stmt
}

func newStmtCache(db *sql.DB, capacity int) *stmtCache {
	return &stmtCache{
		db:      db,
		cap:     capacity,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// get returns a prepared statement for the query, preparing and caching
// it on first use. The least recently used statement is closed when the
// cache is full.
func (c *stmtCache) get(query string) (*sql.Stmt, error) {
	c.mu.Lock()
	if el, ok := c.entries[query]; ok {
		c.lru.MoveToFront(el)
		stmt := el.Value.(*stmtEntry).stmt
		c.mu.Unlock()
		return stmt, nil
	}
	c.mu.Unlock()

	// Prepare outside the lock; a racing prepare of the same query just
	// wastes one statement.
	stmt, err := c.db.Prepare(query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if el, ok := c.entries[query]; ok {
		c.mu.Unlock()
		stmt.Close()
		return el.Value.(*stmtEntry).stmt, nil
	}
	el := c.lru.PushFront(&stmtEntry{query: query, stmt: stmt})
	c.entries[query] = el
	for c.lru.Len() > c.cap {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		entry := oldest.Value.(*stmtEntry)
		delete(c.entries, entry.query)
		entry.stmt.Close()
	}
	c.mu.Unlock()
	return stmt, nil
}

func (c *stmtCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, el := range c.entries {
		el.Value.(*stmtEntry).stmt.Close()
	}
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}
