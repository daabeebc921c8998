package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Key builds the cache key from the normalized query text, top_k, the chosen
// routing level, and the contributing document version set. Because versions
// are part of the key, superseding a document naturally produces a miss.
func Key(query string, topK int, level string, versions map[string]int) string {
	pairs := make([]string, 0, len(versions))
	for documentID, version := range versions {
		pairs = append(pairs, fmt.Sprintf("%s@%d", documentID, version))
	}
	sort.Strings(pairs)

	payload := fmt.Sprintf("%s|%d|%s|%s", NormalizeQuery(query), topK, level, strings.Join(pairs, ","))
	sum := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("%x", sum)
}

// NormalizeQuery lowercases the query and collapses internal whitespace so
// formatting differences do not defeat memoization.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
