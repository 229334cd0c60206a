package memory

import (
	"testing"

	"github.com/omnidrive/omnidrive/pkg/namespace"
	"github.com/omnidrive/omnidrive/pkg/namespace/storetest"
)

func TestMemoryStoreConformance(t *testing.T) {
	suite := storetest.StoreTestSuite{
		NewStore: func(t *testing.T) namespace.Store {
			return NewStore()
		},
	}
	suite.Run(t)
}
