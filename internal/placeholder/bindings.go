package placeholder

import (
	"context"

	"github.com/BaSui01/chatflow/internal/kvstore"
)

// Bindings stores placeholder values in the shared key-value store under a
// namespace, usually one per room. Writes are last-writer-wins.
type Bindings struct {
	store     kvstore.Store
	namespace string
}

// NewBindings scopes bindings to keys "<namespace><name>".
func NewBindings(store kvstore.Store, namespace string) *Bindings {
	return &Bindings{store: store, namespace: namespace}
}

// Key is the store key holding name.
func (b *Bindings) Key(name string) string { return b.namespace + name }

// Bind writes value for name.
func (b *Bindings) Bind(ctx context.Context, name, value string) error {
	return b.store.Set(ctx, b.Key(name), value)
}

// Lookup reads the value bound to name.
func (b *Bindings) Lookup(ctx context.Context, name string) (string, bool, error) {
	return b.store.Get(ctx, b.Key(name))
}
