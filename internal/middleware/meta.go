package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	requestStartKey = "request_start"
	cacheHitKey     = "cache_hit"
)

// WithResponseMeta stamps the request start so handlers can report timing metadata.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Next()
	}
}

// SetCacheHit records whether the response was served from the status cache.
func SetCacheHit(c *gin.Context, hit bool) {
	c.Set(cacheHitKey, hit)
}

// ResponseMeta builds the meta block of the response envelope.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	meta := map[string]interface{}{}
	if v, ok := c.Get(requestStartKey); ok {
		if start, ok := v.(time.Time); ok {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
	if v, ok := c.Get(cacheHitKey); ok {
		meta[cacheHitKey] = v
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
