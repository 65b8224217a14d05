package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "user1/heart/data.csv", ObjectKey("user1", "heart", "data.csv"))
	assert.Equal(t, "user1/data.csv", ObjectKey("user1", "", "data.csv"), "empty segments are skipped")
	assert.Equal(t, "user1", ObjectKey("user1"))
}

func TestPrefixes(t *testing.T) {
	assert.Equal(t, "user1/", UserPrefix("user1"))
	assert.Equal(t, "user1/heart/", LabelPrefix("user1", "heart"))
}
