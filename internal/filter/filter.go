// Package filter ranks merged entities by information content and keeps the
// top N, so sprawling novels produce a bounded entity set.
package filter

import (
	"encoding/json"
	"sort"

	"github.com/lorecard/lorecard/internal/types"
)

// Select splits entities into the keepCount most significant and the rest.
// Significance is the serialized record size: an entity the extractor kept
// finding things to say about outranks a walk-on. Ties break toward the
// entity that appears earlier in the book. keepCount <= 0 keeps everything.
func Select(entities []types.MergedEntity, keepCount int) (kept, dropped []types.MergedEntity) {
	if keepCount <= 0 || len(entities) <= keepCount {
		return entities, nil
	}

	type ranked struct {
		entity types.MergedEntity
		size   int
		first  int
	}
	rankedSet := make([]ranked, len(entities))
	for i, e := range entities {
		data, err := json.Marshal(e)
		size := len(data)
		if err != nil {
			size = 0
		}
		first := e.FirstChunk()
		if first < 0 {
			first = int(^uint(0) >> 1)
		}
		rankedSet[i] = ranked{entity: e, size: size, first: first}
	}

	sort.SliceStable(rankedSet, func(i, j int) bool {
		if rankedSet[i].size != rankedSet[j].size {
			return rankedSet[i].size > rankedSet[j].size
		}
		return rankedSet[i].first < rankedSet[j].first
	})

	kept = make([]types.MergedEntity, 0, keepCount)
	dropped = make([]types.MergedEntity, 0, len(entities)-keepCount)
	for i, r := range rankedSet {
		if i < keepCount {
			kept = append(kept, r.entity)
		} else {
			dropped = append(dropped, r.entity)
		}
	}
	return kept, dropped
}
