package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewULID_SortedAndUnique(t *testing.T) {
	previous := NewULID()
	for i := 0; i < 100; i++ {
		next := NewULID()
		assert.Greater(t, next, previous)
		previous = next
	}
}

func TestNewRunId_Unique(t *testing.T) {
	assert.NotEqual(t, NewRunId(), NewRunId())
}
