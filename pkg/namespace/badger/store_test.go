package badger

import (
	"testing"

	"github.com/omnidrive/omnidrive/pkg/namespace"
	"github.com/omnidrive/omnidrive/pkg/namespace/storetest"
)

func TestBadgerStoreConformance(t *testing.T) {
	suite := storetest.StoreTestSuite{
		NewStore: func(t *testing.T) namespace.Store {
			store, err := NewStore(Options{InMemory: true})
			if err != nil {
				t.Fatalf("open store: %v", err)
			}
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
	suite.Run(t)
}
