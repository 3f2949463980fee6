package geo

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	models "github.com/phillip/volunteer-listings-go/models"
)

// CachedGeocoder memoizes successful lookups in Redis. A nil client or any
// Redis failure falls through to the wrapped geocoder.
type CachedGeocoder struct {
	next   Geocoder
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewCachedGeocoder(next Geocoder, rdb *redis.Client, ttl time.Duration) *CachedGeocoder {
	return &CachedGeocoder{next: next, rdb: rdb, ttl: ttl, prefix: "geocode"}
}

func (c *CachedGeocoder) Geocode(ctx context.Context, address string) (models.GeoPoint, error) {
	if c.rdb == nil {
		return c.next.Geocode(ctx, address)
	}

	key := c.key(address)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var p models.GeoPoint
		if err := json.Unmarshal(raw, &p); err == nil && p.Valid() {
			return p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("geocode-cache: get %s: %v", key, err)
	}

	p, err := c.next.Geocode(ctx, address)
	if err != nil {
		return p, err
	}
	if b, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			log.Printf("geocode-cache: set %s: %v", key, err)
		}
	}
	return p, nil
}

func (c *CachedGeocoder) key(address string) string {
	return c.prefix + ":" + strings.ToLower(strings.Join(strings.Fields(address), " "))
}
