package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortPairsNodeId(t *testing.T) {
	pairs := []Pair[NodeId, NodeId]{
		{V1: 3, V2: 10},
		{V1: 1, V2: 20},
		{V1: 1, V2: 5},
		{V1: 2, V2: 15},
	}
	SortPairs(pairs)
	assert.Equal(t, []Pair[NodeId, NodeId]{
		{V1: 1, V2: 5},
		{V1: 1, V2: 20},
		{V1: 2, V2: 15},
		{V1: 3, V2: 10},
	}, pairs)
}

func TestMakeSortedPair(t *testing.T) {
	assert.Equal(t, Pair[NodeId, NodeId]{2, 7}, MakeSortedPair[NodeId](7, 2))
	assert.Equal(t, Pair[string, string]{"a", "b"}, MakeSortedPair("a", "b"))
}
