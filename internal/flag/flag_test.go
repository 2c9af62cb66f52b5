package flag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type overflow struct {
	backlog int
}

func TestStoreErrorIfNotSetKeepsFirst(t *testing.T) {
	f := New[overflow]()
	first := errors.New("first")
	second := errors.New("second")

	f.StoreErrorIfNotSet(first)
	f.StoreErrorIfNotSet(second)

	err := f.LoadError()
	require.Error(t, err)
	assert.Equal(t, first, err)
}

func TestLoadErrorIsDestructive(t *testing.T) {
	f := New[overflow]()
	f.StoreErrorIfNotSet(errors.New("boom"))

	require.Error(t, f.LoadError())
	assert.NoError(t, f.LoadError())
}

func TestStoreWarningIfNotSetKeepsFirst(t *testing.T) {
	f := New[overflow]()
	f.StoreWarningIfNotSet(overflow{backlog: 1})
	f.StoreWarningIfNotSet(overflow{backlog: 2})

	warning, ok := f.LoadWarning()
	require.True(t, ok)
	assert.Equal(t, 1, warning.backlog)

	_, ok = f.LoadWarning()
	assert.False(t, ok)
}

func TestStoreErrorIfNotSetIgnoresNil(t *testing.T) {
	f := New[overflow]()
	f.StoreErrorIfNotSet(nil)
	assert.NoError(t, f.LoadError())
}
