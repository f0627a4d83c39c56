package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallsignIndexAddLookupRemove(t *testing.T) {
	idx := newCallsignIndex()
	a := &Connection{ID: "a"}
	b := &Connection{ID: "b"}

	idx.Add("DAL123", a)
	idx.Add("DAL123", b)

	got := idx.Lookup("DAL123")
	require.Len(t, got, 2)
	assert.Same(t, a, got[0])
	assert.Same(t, b, got[1])
	assert.Equal(t, 2, idx.LoggedOnCount())

	idx.Remove("DAL123", a)
	got = idx.Lookup("DAL123")
	require.Len(t, got, 1)
	assert.Same(t, b, got[0])

	idx.Remove("DAL123", b)
	assert.Nil(t, idx.Lookup("DAL123"))
	assert.Equal(t, 0, idx.LoggedOnCount())
}

func TestCallsignIndexLookupReturnsSnapshot(t *testing.T) {
	idx := newCallsignIndex()
	a := &Connection{ID: "a"}
	idx.Add("DAL123", a)

	snap := idx.Lookup("DAL123")
	idx.Add("DAL123", &Connection{ID: "c"})

	// The earlier snapshot must not observe the later Add.
	assert.Len(t, snap, 1)
	assert.Len(t, idx.Lookup("DAL123"), 2)
}

func TestCallsignIndexRemoveUnknownIsNoop(t *testing.T) {
	idx := newCallsignIndex()
	idx.Remove("GHOST", &Connection{ID: "x"})
	assert.Nil(t, idx.Lookup("GHOST"))
}
