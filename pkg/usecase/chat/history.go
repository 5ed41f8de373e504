package chat

import (
	"github.com/m-mizutani/docqa/pkg/model"
)

// HistoryLimit is how many prior turns are sent upstream with a question
const HistoryLimit = 4

// ComputeContext returns the last limit turns projected to speaker and text,
// oldest first. It must be called before the new question and its placeholder
// answer are appended so that neither becomes part of the context.
func ComputeContext(turns []model.Turn, limit int) []model.HistoryEntry {
	if limit <= 0 {
		return []model.HistoryEntry{}
	}

	start := max(len(turns)-limit, 0)
	entries := make([]model.HistoryEntry, 0, len(turns)-start)
	for _, t := range turns[start:] {
		entries = append(entries, t.Entry())
	}
	return entries
}
