// Package store holds a registry of block-store implementations,
// which live in its subpackages.
// Each subpackage registers a factory under a name in its init function,
// and programs create stores by name from a configuration map.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
)

// Factory creates a store from a configuration map.
type Factory func(context.Context, map[string]interface{}) (dagdelta.Store, error)

var registry = make(map[string]Factory)

// Register makes a Factory available under the given name.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a store using the Factory registered under key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (dagdelta.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// Names lists the registered store names in sorted order.
func Names() []string {
	var result []string
	for k := range registry {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// CreateNested creates the store described by conf["nested"],
// for stores that wrap another.
// The nested map must have a "type" entry naming a registered store.
func CreateNested(ctx context.Context, conf map[string]interface{}) (dagdelta.Store, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "nested" parameter`)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, errors.New(`"nested" parameter missing "type"`)
	}
	s, err := Create(ctx, nestedType, nested)
	return s, errors.Wrap(err, "creating nested store")
}

// IntParam gets an integer from a configuration map.
// Numbers decoded from JSON arrive as float64 and are accepted if integral.
func IntParam(conf map[string]interface{}, key string) (int, bool) {
	switch v := conf[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}
