package store_test

import (
	"testing"

	"github.com/marwant/zizh/internal/store"
	"github.com/marwant/zizh/internal/store/storetest"
)

func TestMemoryEngine(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Engine {
		return store.NewMemory()
	})
}
