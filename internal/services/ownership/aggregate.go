package ownership

import (
	"sort"

	"github.com/sakaguchi/ownerstats/internal/entities"
)

// DefaultLimit is the number of (kind, type) buckets returned when a request
// does not specify one.
const DefaultLimit = 6

// MaxLimit caps caller-supplied limits.
const MaxLimit = 50

// typeBucket accumulates the count for one (kind, type) pair. Type is empty
// when the entity carries no spec.type; an absent type is its own bucket per
// kind, distinct from any named type.
type typeBucket struct {
	Kind  string
	Type  string
	Count int
}

// aggregateByType reduces the entity list to the limit most frequent
// (kind, type) pairs. Buckets are kept in first-seen order during the scan;
// the stable descending sort therefore breaks count ties by first encounter.
// Pure and total: never fails, any input order yields the same counts.
func aggregateByType(items []entities.Entity, limit int) []typeBucket {
	type bucketKey struct {
		kind string
		typ  string
	}

	var buckets []typeBucket
	index := make(map[bucketKey]int)

	for i := range items {
		key := bucketKey{kind: items[i].Kind, typ: items[i].Type}
		if at, ok := index[key]; ok {
			buckets[at].Count++
			continue
		}
		index[key] = len(buckets)
		buckets = append(buckets, typeBucket{Kind: key.kind, Type: key.typ, Count: 1})
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Count > buckets[j].Count
	})

	if limit > 0 && len(buckets) > limit {
		buckets = buckets[:limit]
	}
	return buckets
}
