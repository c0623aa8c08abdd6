package orm

import (
	"reflect"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"

	"github.com/pescuma/submerge/lib/model"
)

func TestEqualsSameMapping(t *testing.T) {
	t.Parallel()

	m := &model.MappedCommit{History: model.Submodule, Original: plumbing.NewHash("01"), New: plumbing.NewHash("02")}

	p1 := newSqlCommitMapping(m)
	p2 := newSqlCommitMapping(m)

	assert.True(t, reflect.DeepEqual(p1, p2))

	p1.New = "b"
	assert.False(t, reflect.DeepEqual(p1, p2))
}

func TestPrepareChangeSkipsUnchanged(t *testing.T) {
	t.Parallel()

	cache := map[string]*sqlConfig{}

	assert.True(t, prepareChange(&cache, newSqlConfig("a", "1")))
	assert.False(t, prepareChange(&cache, newSqlConfig("a", "1")))
	assert.True(t, prepareChange(&cache, newSqlConfig("a", "2")))
}

func TestZeroHashIsStoredEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", encodeHash(plumbing.ZeroHash))
	assert.Equal(t, plumbing.ZeroHash, decodeHash(""))

	h := plumbing.NewHash("abcd")
	assert.Equal(t, h, decodeHash(encodeHash(h)))
}
