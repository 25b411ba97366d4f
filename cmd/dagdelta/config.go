package main

import (
	"context"
	"io/fs"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/chunker"
	"github.com/bobg/dagdelta/store"
	_ "github.com/bobg/dagdelta/store/compress"
	_ "github.com/bobg/dagdelta/store/file"
	_ "github.com/bobg/dagdelta/store/gcs"
	"github.com/bobg/dagdelta/store/logging"
	"github.com/bobg/dagdelta/store/lru"
	_ "github.com/bobg/dagdelta/store/mem"
	_ "github.com/bobg/dagdelta/store/pg"
	_ "github.com/bobg/dagdelta/store/replica"
	_ "github.com/bobg/dagdelta/store/sqlite3"
)

// loadConfig reads configuration from filename, if it exists,
// with DAGDELTA_-prefixed environment variables taking precedence.
func loadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()

	o := chunker.DefaultOptions()
	v.SetDefault("min_size", o.Min)
	v.SetDefault("max_size", o.Max)
	v.SetDefault("avg_size", o.Avg)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dev", false)
	v.SetDefault("cache_size", 0)

	v.SetEnvPrefix("DAGDELTA")
	v.AutomaticEnv()

	if filename == "" {
		return v, nil
	}
	if _, err := os.Stat(filename); errors.Is(err, fs.ErrNotExist) {
		return v, nil
	}
	v.SetConfigFile(filename)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", filename)
	}
	return v, nil
}

func sizesFromConfig(v *viper.Viper) chunker.Options {
	return chunker.Options{
		Min: v.GetInt("min_size"),
		Max: v.GetInt("max_size"),
		Avg: v.GetInt("avg_size"),
	}
}

func newLogger(v *viper.Viper) (*zap.Logger, error) {
	lc := zap.NewProductionConfig()
	if v.GetBool("log_dev") {
		lc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(v.GetString("log_level"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing log_level")
	}
	lc.Level = level
	return lc.Build()
}

// storeFromConfig creates the store described by the "store" config key,
// or returns nil if there is none.
// The store logs its operations,
// and if cache_size is positive it is fronted by an LRU cache of that many blocks.
func storeFromConfig(ctx context.Context, v *viper.Viper, logger *zap.Logger) (dagdelta.Store, error) {
	conf := v.GetStringMap("store")
	if len(conf) == 0 {
		return nil, nil
	}
	s, err := storeFromMap(ctx, conf)
	if err != nil {
		return nil, err
	}
	s = logging.New(s, logger.Named("store"))

	if n := v.GetInt("cache_size"); n > 0 {
		return lru.New(s, n)
	}
	return s, nil
}

func storeFromMap(ctx context.Context, conf map[string]interface{}) (dagdelta.Store, error) {
	typ, ok := conf["type"].(string)
	if !ok {
		return nil, errors.New(`store config missing "type" parameter`)
	}
	s, err := store.Create(ctx, typ, conf)
	return s, errors.Wrapf(err, "creating %s-type store", typ)
}

// storeFromFile creates a store from a standalone JSON config file,
// whose top level is the store's configuration map.
func storeFromFile(ctx context.Context, filename string) (dagdelta.Store, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading store config %s", filename)
	}
	return storeFromMap(ctx, v.AllSettings())
}
