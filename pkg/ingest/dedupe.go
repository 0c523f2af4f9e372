package ingest

import (
	"github.com/kumarabd/console-brief/pkg/logtypes"
)

// DedupeKey identifies "the same" console line.
func DedupeKey(e logtypes.NormalizedEntry) string {
	return e.Level + "|" + e.Source + "|" + e.Message
}

// Dedupe collapses entries sharing a DedupeKey. The first occurrence keeps
// its position and timestamp; repeats only bump Count and LastTimestamp.
func Dedupe(entries []logtypes.NormalizedEntry) []logtypes.DedupedEntry {
	byKey := make(map[string]int, len(entries))
	ordered := make([]logtypes.DedupedEntry, 0, len(entries))

	for _, entry := range entries {
		key := DedupeKey(entry)
		if idx, ok := byKey[key]; ok {
			ordered[idx].Count++
			ordered[idx].LastTimestamp = entry.Timestamp
			continue
		}
		byKey[key] = len(ordered)
		ordered = append(ordered, logtypes.DedupedEntry{
			NormalizedEntry: entry,
			Count:           1,
			LastTimestamp:   entry.Timestamp,
		})
	}
	return ordered
}

// PassThrough wraps every entry with Count 1, for reports that skip dedupe.
func PassThrough(entries []logtypes.NormalizedEntry) []logtypes.DedupedEntry {
	out := make([]logtypes.DedupedEntry, len(entries))
	for i, entry := range entries {
		out[i] = logtypes.DedupedEntry{
			NormalizedEntry: entry,
			Count:           1,
			LastTimestamp:   entry.Timestamp,
		}
	}
	return out
}
