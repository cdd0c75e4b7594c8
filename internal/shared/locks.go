package shared

import "fmt"

// IdempotencyRedisKey builds the redis key guarding a submission key.
func IdempotencyRedisKey(scope, key string) string {
	return fmt.Sprintf("billing:idem:%s:%s", scope, key)
}

// StockCacheKey builds the redis key for a cached stock snapshot.
func StockCacheKey(location, item string) string {
	if location == "" {
		location = "*"
	}
	return fmt.Sprintf("billing:stock:%s:%s", location, item)
}
