package params

import "sync"

// UnknownIDWarner deduplicates "unknown parameter ID" warnings so that a
// file with many rows sharing an unrecognized ParamID only logs once per
// ID. The dedup set is keyed on the (table, id) pair directly, since this
// check runs on every row a reader decodes.
type UnknownIDWarner struct {
	mu   sync.Mutex
	seen map[warnKey]struct{}
}

type warnKey struct {
	table string
	id    uint16
}

// NewUnknownIDWarner returns a ready-to-use warner.
func NewUnknownIDWarner() *UnknownIDWarner {
	return &UnknownIDWarner{seen: make(map[warnKey]struct{})}
}

// Warn records the (table, id) pair and reports whether this is its first
// sighting. It returns true the first time a given id is seen for table, and
// false on every subsequent call, so the caller can emit its warning (to
// Log_Entries, or wherever it logs) only on the first true.
func (w *UnknownIDWarner) Warn(table string, id uint16) bool {
	key := warnKey{table: table, id: id}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[key]; ok {
		return false
	}
	w.seen[key] = struct{}{}
	return true
}
