package gcrypto

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
)

// Prefixes are encoded as a fixed width.
const prefixSize = 8

// Registry maps public key type names to constructors,
// so that committee configuration can name keys of different types.
//
// There is no global registry.
// Register all key types before any concurrent use;
// after that, a Registry is safe for concurrent reads.
type Registry struct {
	byType map[reflect.Type]string

	byName map[string]NewPubKeyFunc
}

type NewPubKeyFunc func([]byte) (PubKey, error)

// Register associates name with the concrete type of inst.
// It panics if name is empty, too long to fit in a marshalled prefix,
// or already registered.
func (r *Registry) Register(name string, inst PubKey, newFn NewPubKeyFunc) {
	if name == "" || len(name) > prefixSize {
		panic(fmt.Errorf("BUG: public key type name must be 1-%d bytes; got %q", prefixSize, name))
	}

	if _, ok := r.byName[name]; ok {
		panic(fmt.Errorf("BUG: public key type %q registered twice", name))
	}

	if r.byName == nil {
		r.byName = map[string]NewPubKeyFunc{}
	}
	r.byName[name] = newFn

	if r.byType == nil {
		r.byType = map[reflect.Type]string{}
	}
	r.byType[reflect.TypeOf(inst)] = name
}

// Marshal returns the type-prefixed encoding of pubKey.
func (r *Registry) Marshal(pubKey PubKey) []byte {
	var nameHeader [prefixSize]byte

	typ := reflect.TypeOf(pubKey)
	prefix, ok := r.byType[typ]
	if !ok {
		panic(fmt.Errorf(
			"BUG: attempted to Marshal a public key that was never registered (reflect type: %s, type name: %s)",
			typ, pubKey.TypeName(),
		))
	}

	copy(nameHeader[:], prefix)

	return append(nameHeader[:], pubKey.PubKeyBytes()...)
}

// Unmarshal returns a new public key based on b,
// which should be the result of a previous call to [*Registry.Marshal].
//
// The returned PubKey may retain a reference to b.
func (r *Registry) Unmarshal(b []byte) (PubKey, error) {
	if len(b) <= prefixSize {
		return nil, errors.New("marshalled public key too short")
	}

	prefix := bytes.TrimRight(b[:prefixSize], "\x00")

	fn := r.byName[string(prefix)]
	if fn == nil {
		return nil, fmt.Errorf("no registered public key type for prefix %q", prefix)
	}

	return fn(b[prefixSize:])
}

// Decode returns a new PubKey from the given type name and raw key bytes.
//
// The returned PubKey may retain a reference to b.
func (r *Registry) Decode(typeName string, b []byte) (PubKey, error) {
	fn := r.byName[typeName]
	if fn == nil {
		return nil, fmt.Errorf("no registered public key type for name %q", typeName)
	}

	return fn(b)
}
