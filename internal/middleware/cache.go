package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
	elapsedKey      = "processing_time_ms"
)

// ResponseMeta attaches a metadata map to the request. Handlers fill it through
// MarkCacheHit and read it back with Meta when writing the envelope.
func ResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Set(elapsedKey, time.Now())
		c.Next()
	}
}

// MarkCacheHit records whether the payload came from the catalogue cache.
func MarkCacheHit(c *gin.Context, hit bool) {
	meta := metaMap(c)
	if meta == nil {
		return
	}
	meta[cacheHitKey] = hit
}

// Meta returns the metadata collected so far, stamped with the elapsed time.
// It returns nil when ResponseMeta is not installed on the route.
func Meta(c *gin.Context) map[string]interface{} {
	meta := metaMap(c)
	if meta == nil {
		return nil
	}
	if started, ok := c.Get(elapsedKey); ok {
		if at, ok := started.(time.Time); ok {
			meta[elapsedKey] = time.Since(at).Milliseconds()
		}
	}
	return meta
}

func metaMap(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	raw, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	meta, _ := raw.(map[string]interface{})
	return meta
}
