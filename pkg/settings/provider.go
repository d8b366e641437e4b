// Package settings resolves per-operator routing settings. Settings
// live in MongoDB, keyed by the operator's phone number, with a Redis
// read-through cache in front so the webhook path rarely touches the
// database.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/logger"
	"github.com/troikatech/voice-bridge/pkg/mongo"
	"github.com/troikatech/voice-bridge/pkg/otel"
	"github.com/troikatech/voice-bridge/pkg/retry"
	"github.com/troikatech/voice-bridge/pkg/routing"
	"github.com/troikatech/voice-bridge/pkg/utils"
)

const cacheKeyPrefix = "routing-settings:"

// Source resolves the routing settings for a dialed operator number.
type Source interface {
	Lookup(ctx context.Context, accountNumber string) (routing.Settings, error)
}

// Provider is the production Source: MongoDB behind a Redis cache.
type Provider struct {
	db         *mongo.Client
	cache      *redis.Client
	collection string
	cacheTTL   time.Duration
	defaults   routing.Settings
	logger     *zap.Logger
}

// NewProvider builds a Provider. cache may be nil, in which case every
// lookup goes to MongoDB. defaults are returned for unknown numbers.
func NewProvider(db *mongo.Client, cache *redis.Client, collection string, cacheTTL time.Duration, defaults routing.Settings, log *zap.Logger) *Provider {
	if log == nil {
		log = logger.Log
	}
	return &Provider{
		db:         db,
		cache:      cache,
		collection: collection,
		cacheTTL:   cacheTTL,
		defaults:   Normalize(defaults),
		logger:     log,
	}
}

// Lookup returns the settings for accountNumber, falling back to the
// configured defaults when no operator document exists.
func (p *Provider) Lookup(ctx context.Context, accountNumber string) (routing.Settings, error) {
	if cached, ok := p.fromCache(ctx, accountNumber); ok {
		return cached, nil
	}

	s, err := p.fromMongo(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			p.logger.Debug("no operator settings, using defaults",
				zap.String("account", utils.MaskPhoneNumber(accountNumber)))
			s = p.defaults
		} else {
			return routing.Settings{}, fmt.Errorf("settings: lookup %s: %w", utils.MaskPhoneNumber(accountNumber), err)
		}
	}

	s = Normalize(s)
	p.toCache(ctx, accountNumber, s)
	return s, nil
}

// Invalidate drops the cached settings for accountNumber. Called when
// an operator changes configuration.
func (p *Provider) Invalidate(ctx context.Context, accountNumber string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Del(ctx, cacheKeyPrefix+accountNumber).Err(); err != nil {
		p.logger.Warn("settings cache invalidation failed", zap.Error(err))
	}
}

func (p *Provider) fromCache(ctx context.Context, accountNumber string) (routing.Settings, bool) {
	if p.cache == nil {
		return routing.Settings{}, false
	}

	raw, err := p.cache.Get(ctx, cacheKeyPrefix+accountNumber).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			p.logger.Warn("settings cache read failed", zap.Error(err))
		}
		return routing.Settings{}, false
	}

	var s routing.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		p.logger.Warn("settings cache entry corrupt", zap.Error(err))
		return routing.Settings{}, false
	}
	return s, true
}

func (p *Provider) toCache(ctx context.Context, accountNumber string, s routing.Settings) {
	if p.cache == nil {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, cacheKeyPrefix+accountNumber, raw, p.cacheTTL).Err(); err != nil {
		p.logger.Warn("settings cache write failed", zap.Error(err))
	}
}

func (p *Provider) fromMongo(ctx context.Context, accountNumber string) (routing.Settings, error) {
	var s routing.Settings
	found := false
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		_, _, err := otel.ExecuteSelect(ctx, p.collection, func() ([]byte, int64, error) {
			findErr := p.db.Collection(p.collection).
				FindOne(ctx, bson.M{"phone_number": accountNumber}).
				Decode(&s)
			if findErr != nil {
				return nil, 0, findErr
			}
			return nil, 1, nil
		})
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			// Retrying will not conjure a document.
			return nil
		}
		if err == nil {
			found = true
		}
		return err
	})
	if err != nil {
		return routing.Settings{}, err
	}
	if !found {
		return routing.Settings{}, mongodriver.ErrNoDocuments
	}
	return s, nil
}

// Normalize fills the zero values an operator document may omit so the
// routing engine always sees a well-formed configuration.
func Normalize(s routing.Settings) routing.Settings {
	if s.AgentMode == "" {
		s.AgentMode = routing.ModeAuto
	}
	if s.FallbackPolicy == "" {
		s.FallbackPolicy = routing.FallbackVoicemail
	}
	return s
}

// StaticSource is a Source backed by a fixed settings value. Used by
// the route-check CLI and in tests.
type StaticSource struct {
	Settings routing.Settings
}

func (s StaticSource) Lookup(context.Context, string) (routing.Settings, error) {
	return Normalize(s.Settings), nil
}
