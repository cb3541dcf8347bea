package saxo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"SaxoBridge/internal/domain/models"
	"SaxoBridge/pkg/cache"
	"SaxoBridge/pkg/logger"
	"SaxoBridge/pkg/util"
)

const symbolCachePrefix = "symbol"

// Resolver maps human codes such as "AAPL:xnas" onto instrument ids
// through the instrument search, caching hits.
type Resolver struct {
	api    *API
	cache  cache.Service
	ttl    time.Duration
	logger *logger.Logger
}

func NewResolver(api *API, c cache.Service, ttl time.Duration, l *logger.Logger) *Resolver {
	return &Resolver{api: api, cache: c, ttl: ttl, logger: l}
}

// Resolve returns the instrument for code. Symbol carries the instrument
// id and Type the upstream asset type. The search spans every asset type;
// the type of the first matching hit wins over the caller's.
func (r *Resolver) Resolve(ctx context.Context, token, code, _ string) (models.Instrument, error) {
	key := cache.GenerateKey(symbolCachePrefix, code)

	var inst models.Instrument
	err := r.cache.Get(ctx, key, &inst)
	if err == nil {
		return inst, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("symbol cache read failed", logger.String("code", code), logger.Error(err))
	}

	want := strings.ToLower(util.Before(code, ":"))
	hits, err := r.api.SearchInstruments(ctx, token, util.Before(code, ":"), "")
	if err != nil {
		return inst, fmt.Errorf("resolve %s: %w", code, err)
	}
	for _, h := range hits {
		if strings.ToLower(util.Before(h.Symbol, ":")) != want {
			continue
		}
		inst = models.Instrument{
			Symbol: strconv.FormatInt(h.Identifier, 10),
			Code:   code,
			Type:   h.AssetType,
		}
		if err := r.cache.Set(ctx, key, inst, r.ttl); err != nil {
			r.logger.Warn("symbol cache write failed", logger.String("code", code), logger.Error(err))
		}
		return inst, nil
	}
	return inst, fmt.Errorf("resolve %s: %w", code, models.ErrNotFound)
}
