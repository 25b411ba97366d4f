package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/bobg/dagdelta/chunker"
	"github.com/bobg/dagdelta/store/lru"
)

func TestLoadConfigDefaults(t *testing.T) {
	v, err := loadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(chunker.DefaultOptions(), sizesFromConfig(v)); diff != "" {
		t.Errorf("sizes mismatch (-want +got):\n%s", diff)
	}
	s, err := storeFromConfig(context.Background(), v, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if s != nil {
		t.Errorf("got store %T with no store configured", s)
	}
	if _, err := newLogger(v); err != nil {
		t.Error(err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "dagdelta.json")
	const conf = `{
  "min_size": 1024,
  "max_size": 32768,
  "log_level": "debug",
  "cache_size": 10,
  "store": {"type": "mem"}
}`
	if err := os.WriteFile(filename, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DAGDELTA_AVG_SIZE", "4096")

	v, err := loadConfig(filename)
	if err != nil {
		t.Fatal(err)
	}
	want := chunker.Options{Min: 1024, Max: 32768, Avg: 4096}
	if diff := cmp.Diff(want, sizesFromConfig(v)); diff != "" {
		t.Errorf("sizes mismatch (-want +got):\n%s", diff)
	}

	s, err := storeFromConfig(context.Background(), v, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*lru.Store); !ok {
		t.Errorf("got store %T, want *lru.Store", s)
	}
}

func TestBadConfig(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"store": `), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(bad); err == nil {
		t.Error("loaded a malformed config file")
	}

	untyped := filepath.Join(dir, "untyped.json")
	if err := os.WriteFile(untyped, []byte(`{"store": {"root": "/tmp"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	v, err := loadConfig(untyped)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := storeFromConfig(context.Background(), v, zap.NewNop()); err == nil {
		t.Error("created a store with no type")
	}

	badLevel := filepath.Join(dir, "level.json")
	if err := os.WriteFile(badLevel, []byte(`{"log_level": "loud"}`), 0644); err != nil {
		t.Fatal(err)
	}
	v, err = loadConfig(badLevel)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := newLogger(v); err == nil {
		t.Error("accepted an unknown log level")
	}
}

func TestStoreFromFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(filename, []byte(`{"type": "lru", "size": 5, "nested": {"type": "mem"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := storeFromFile(context.Background(), filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*lru.Store); !ok {
		t.Errorf("got store %T, want *lru.Store", s)
	}
}
