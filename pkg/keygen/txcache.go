package keygen

import "sync"

// TxCache is a transaction-scoped write-behind cache of freshly keyed rows.
// Rows put under one transaction are visible only to that transaction until
// it commits or rolls back, after which its entries are dropped.
type TxCache struct {
	mu  sync.RWMutex
	txs map[string]map[Key]Row
}

// NewTxCache creates an empty TxCache.
func NewTxCache() *TxCache {
	return &TxCache{txs: make(map[string]map[Key]Row)}
}

// Put records row under key for txID.
func (c *TxCache) Put(txID string, key Key, row Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.txs[txID]
	if !ok {
		rows = make(map[Key]Row)
		c.txs[txID] = rows
	}
	rows[key] = copyRow(row)
}

// Get returns the row cached for key in txID.
func (c *TxCache) Get(txID string, key Key) (Row, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.txs[txID][key]
	if !ok {
		return nil, false
	}
	return copyRow(row), true
}

// Commit drops txID's entries once they are durable.
func (c *TxCache) Commit(txID string) { c.drop(txID) }

// Rollback discards txID's entries.
func (c *TxCache) Rollback(txID string) { c.drop(txID) }

// Len returns the number of cached rows across all transactions.
func (c *TxCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, rows := range c.txs {
		n += len(rows)
	}
	return n
}

func (c *TxCache) drop(txID string) {
	c.mu.Lock()
	delete(c.txs, txID)
	c.mu.Unlock()
}

func copyRow(row Row) Row {
	if row == nil {
		return nil
	}
	cp := make(Row, len(row))
	for k, v := range row {
		cp[k] = v
	}
	return cp
}
