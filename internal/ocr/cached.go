package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"several/internal/cache"
)

// CachedExtractor memoizes successful extractions by image digest.
type CachedExtractor struct {
	next  Extractor
	cache cache.Cache[Result]
}

func NewCachedExtractor(next Extractor, c cache.Cache[Result]) *CachedExtractor {
	return &CachedExtractor{next: next, cache: c}
}

func (c *CachedExtractor) ExtractExpenseData(ctx context.Context, image []byte) (Result, error) {
	if len(image) == 0 {
		return Result{}, ErrEmptyImage
	}
	sum := sha256.Sum256(image)
	key := hex.EncodeToString(sum[:])

	if res, ok := c.cache.Get(key); ok {
		return res, nil
	}
	res, err := c.next.ExtractExpenseData(ctx, image)
	if err != nil {
		return Result{}, err
	}
	c.cache.Set(key, res)
	return res, nil
}

// Stats exposes the cache counters for the metrics endpoint.
func (c *CachedExtractor) Stats() cache.Stats {
	return c.cache.Stats()
}
