package store

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Open creates a Store from its URL:
//
//	memory://                   process-local, lost on restart
//	badger:///var/lib/grabby    embedded on-disk
//	redis://host:6379/0         external Redis (rediss:// for TLS)
func Open(url string) (Store, error) {
	switch {
	case url == "" || url == "memory://":
		return NewMemoryStore(), nil

	case strings.HasPrefix(url, "badger://"):
		path := strings.TrimPrefix(url, "badger://")
		if path == "" {
			return nil, fmt.Errorf("badger store URL missing path")
		}
		return OpenBadgerStore(path)

	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		return OpenRedisStore(opts)

	default:
		return nil, fmt.Errorf("unknown store backend: %s", url)
	}
}
