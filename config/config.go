// Package config loads data source settings from YAML with an environment
// overlay and builds the matching docsource.Config.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/docsource"
	c "github.com/unkn0wn-root/docsource/codec"
	gen "github.com/unkn0wn-root/docsource/genstore"
	zaplog "github.com/unkn0wn-root/docsource/log/zap"
	pr "github.com/unkn0wn-root/docsource/provider"
	"github.com/unkn0wn-root/docsource/provider/bigcache"
	"github.com/unkn0wn-root/docsource/provider/memory"
	rprov "github.com/unkn0wn-root/docsource/provider/redis"
	"github.com/unkn0wn-root/docsource/provider/ristretto"
)

// EnvPrefix namespaces the environment overrides.
const EnvPrefix = "DOCSOURCE_"

var ErrUnknownOption = errors.New("config: unknown option")

type File struct {
	Cache CacheConfig `yaml:"cache"`
	Batch BatchConfig `yaml:"batch"`
	Log   LogConfig   `yaml:"log"`
}

type CacheConfig struct {
	Provider    string        `yaml:"provider"` // memory | redis | ristretto | bigcache | none
	Codec       string        `yaml:"codec"`    // bson | json | msgpack | cbor
	TTL         time.Duration `yaml:"ttl"`
	KeyPrefix   string        `yaml:"key_prefix"`
	Generations string        `yaml:"generations"` // none | local | redis

	Redis     RedisConfig     `yaml:"redis"`
	Ristretto RistrettoConfig `yaml:"ristretto"`
	BigCache  BigCacheConfig  `yaml:"bigcache"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	GenTTL   time.Duration `yaml:"gen_ttl"`
}

type RistrettoConfig struct {
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
	BufferItems int64 `yaml:"buffer_items"`
}

type BigCacheConfig struct {
	LifeWindow  time.Duration `yaml:"life_window"`
	CleanWindow time.Duration `yaml:"clean_window"`
	HardMaxMB   int           `yaml:"hard_max_mb"`
}

type BatchConfig struct {
	Wait     time.Duration `yaml:"wait"`
	MaxBatch int           `yaml:"max_batch"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Default is used for anything a file leaves unset.
func Default() File {
	return File{
		Cache: CacheConfig{
			Provider:    "memory",
			Codec:       "bson",
			Generations: "none",
			Ristretto:   RistrettoConfig{NumCounters: 1e5, MaxCost: 64 << 20, BufferItems: 64},
			BigCache:    BigCacheConfig{LifeWindow: 10 * time.Minute},
		},
		Batch: BatchConfig{Wait: time.Millisecond},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads path (skipped when empty), expands ${VAR} references and then
// applies DOCSOURCE_* overrides. envFiles are loaded first with godotenv;
// variables already set in the process win.
func Load(path string, envFiles ...string) (File, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return File{}, fmt.Errorf("config: load env: %w", err)
		}
	}
	f := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &f); err != nil {
			return File{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := f.applyEnv(); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f *File) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
		return nil
	}
	str("CACHE_PROVIDER", &f.Cache.Provider)
	str("CACHE_CODEC", &f.Cache.Codec)
	str("KEY_PREFIX", &f.Cache.KeyPrefix)
	str("GENERATIONS", &f.Cache.Generations)
	str("REDIS_ADDR", &f.Cache.Redis.Addr)
	str("REDIS_PASSWORD", &f.Cache.Redis.Password)
	str("LOG_LEVEL", &f.Log.Level)
	if err := dur("CACHE_TTL", &f.Cache.TTL); err != nil {
		return err
	}
	if err := dur("BATCH_WAIT", &f.Batch.Wait); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(EnvPrefix + "MAX_BATCH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sMAX_BATCH: %w", EnvPrefix, err)
		}
		f.Batch.MaxBatch = n
	}
	return nil
}

// Built is a ready docsource.Config plus the resources it owns.
type Built struct {
	Config docsource.Config
	Logger *zap.Logger

	closers []func(context.Context) error
}

// Close releases the provider, generation store, and redis client.
func (b *Built) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i](ctx))
	}
	if b.Logger != nil {
		_ = b.Logger.Sync()
	}
	return errors.Join(errs...)
}

// Build turns f into a docsource.Config. The returned Built must be closed.
func Build(ctx context.Context, f File) (*Built, error) {
	b := &Built{}
	ok := false
	defer func() {
		if !ok {
			_ = b.Close(ctx)
		}
	}()

	lvl, err := zapcore.ParseLevel(f.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", ErrUnknownOption, f.Log.Level)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	if b.Logger, err = zc.Build(); err != nil {
		return nil, err
	}

	cfg := docsource.Config{
		Context:   ctx,
		TTL:       f.Cache.TTL,
		KeyPrefix: f.Cache.KeyPrefix,
		Logger:    zaplog.ZapLogger{L: b.Logger},
		BatchWait: f.Batch.Wait,
		MaxBatch:  f.Batch.MaxBatch,
	}

	if cfg.Codec, err = buildCodec(f.Cache.Codec); err != nil {
		return nil, err
	}

	var rdb goredis.UniversalClient
	redisClient := func() goredis.UniversalClient {
		if rdb == nil {
			rdb = goredis.NewClient(&goredis.Options{
				Addr:     f.Cache.Redis.Addr,
				Password: f.Cache.Redis.Password,
				DB:       f.Cache.Redis.DB,
			})
			b.closers = append(b.closers, func(context.Context) error { return rdb.Close() })
		}
		return rdb
	}

	var p pr.Provider
	switch strings.ToLower(f.Cache.Provider) {
	case "", "memory":
		p = memory.New(time.Minute)
	case "none":
		cfg.DisableCache = true
	case "redis":
		p, err = rprov.New(rprov.Config{Client: redisClient()})
	case "ristretto":
		p, err = ristretto.New(ristretto.Config{
			NumCounters: f.Cache.Ristretto.NumCounters,
			MaxCost:     f.Cache.Ristretto.MaxCost,
			BufferItems: f.Cache.Ristretto.BufferItems,
			Synchronous: true,
		})
		cfg.ComputeSetCost = func(_ string, raw []byte, _ bool, _ int) int64 { return int64(len(raw)) }
	case "bigcache":
		p, err = bigcache.New(ctx, bigcache.Config{
			LifeWindow:         f.Cache.BigCache.LifeWindow,
			CleanWindow:        f.Cache.BigCache.CleanWindow,
			HardMaxCacheSizeMB: f.Cache.BigCache.HardMaxMB,
		})
	default:
		return nil, fmt.Errorf("%w: cache provider %q", ErrUnknownOption, f.Cache.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("config: cache provider: %w", err)
	}
	if p != nil {
		cfg.Cache = p
		b.closers = append(b.closers, p.Close)
	}

	var gs gen.GenStore
	switch strings.ToLower(f.Cache.Generations) {
	case "", "none":
	case "local":
		gs = gen.NewLocal(time.Minute, time.Hour)
	case "redis":
		gs = gen.NewRedis(redisClient(), f.Cache.KeyPrefix+"docsource", f.Cache.Redis.GenTTL)
	default:
		return nil, fmt.Errorf("%w: generations %q", ErrUnknownOption, f.Cache.Generations)
	}
	if gs != nil {
		cfg.GenStore = gs
		b.closers = append(b.closers, gs.Close)
	}

	b.Config = cfg
	ok = true
	return b, nil
}

func buildCodec(name string) (c.Codec[docsource.Record], error) {
	switch strings.ToLower(name) {
	case "", "bson":
		return c.BSON[docsource.Record]{}, nil
	case "json":
		return c.JSON[docsource.Record]{}, nil
	case "msgpack":
		return c.Msgpack[docsource.Record]{}, nil
	case "cbor":
		return c.NewCBOR[docsource.Record](true)
	default:
		return nil, fmt.Errorf("%w: codec %q", ErrUnknownOption, name)
	}
}
