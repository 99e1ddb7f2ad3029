package memory

import (
	"testing"

	"github.com/smallbiznis/freya/internal/store"
	"github.com/smallbiznis/freya/internal/store/testkit"
)

func TestStoreContract(t *testing.T) {
	testkit.Run(t, func(t *testing.T) store.Store { return New() })
}
