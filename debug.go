package docmap

import (
	"fmt"
	"strconv"
	"strings"
)

type DumpFlags uint64

const (
	DumpHeaders = DumpFlags(1 << iota)
	DumpStats
	DumpEntries

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the contents of every mapping in the schema, for debugging.
// Errors are rendered inline.
func (tx *Tx) Dump(f DumpFlags) string {
	var buf strings.Builder
	for _, m := range tx.db.schema.mappings {
		tx.dumpMapping(&buf, f, m)
	}
	return buf.String()
}

func (tx *Tx) dumpMapping(w *strings.Builder, f DumpFlags, m Mapping) {
	s, err := m.Stats(tx)
	if err != nil {
		fmt.Fprintf(w, "%s ** ERROR: %v\n", m.name, err)
		return
	}

	if f.Contains(DumpHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d entries)\n", m.name, s.Count)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: min_id = %d, max_id = %d, free = %d, data_size = %d, data_alloc = %d\n", m.name, s.MinID, s.MaxID, s.Free, s.DataSize, s.DataAlloc)
	}
	if f.Contains(DumpEntries) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(w, dumpSep2)
		}
		c := m.Iterate(tx)
		var pos int
		for c.Next() {
			pos++
			fmt.Fprintf(w, "%s.%d: %d => %s\n", m.name, pos, c.ID(), strconv.Quote(c.UserID()))
		}
		if err := c.Err(); err != nil {
			fmt.Fprintf(w, "%s.%d ** ERROR: %v\n", m.name, pos+1, err)
		}
	}
}
