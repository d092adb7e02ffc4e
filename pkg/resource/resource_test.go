package resource_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/filebot/pkg/resource"
)

type doc struct {
	ID   string
	Size int64
}

func docResource(d doc) resource.Map {
	return resource.Map{"id": d.ID, "size": d.Size}
}

func TestOne(t *testing.T) {
	assert.Equal(t, resource.Map{"id": "a", "size": int64(3)}, resource.One(doc{ID: "a", Size: 3}, docResource))
}

func TestManyEncodesEmptyAsArray(t *testing.T) {
	raw, err := json.Marshal(resource.Many[doc](nil, docResource))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))

	out := resource.Many([]doc{{ID: "a"}, {ID: "b"}}, docResource)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[1]["id"])
}

func TestMerge(t *testing.T) {
	m := resource.Merge(resource.Map{"id": "a", "size": 1}, resource.Map{"size": 2, "link": "x"})
	assert.Equal(t, resource.Map{"id": "a", "size": 2, "link": "x"}, m)
}
