package cache

import (
	"fmt"

	"github.com/pricescout/backend/internal/domain"
)

// unavailable marks a backend failure as ErrCacheUnavailable
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrCacheUnavailable, op, err)
}
