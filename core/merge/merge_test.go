package merge_test

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxrs-io/oxrs-go/core/merge"
)

func document(t *testing.T, data string) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	err := json.Unmarshal([]byte(data), &doc)
	require.NoError(t, err)
	return doc
}

func TestMergeIntoEmptyIsStructuralCopy(t *testing.T) {
	src := document(t, `{"brightness":{"title":"Brightness","type":"integer","minimum":0},"tags":["a","b"]}`)
	dst := map[string]interface{}{}

	merge.Merge(dst, src)
	assert.Equal(t, src, dst)

	// mutating the copy must not write through into the source
	dst["brightness"].(map[string]interface{})["title"] = "changed"
	dst["tags"].([]interface{})[0] = "changed"
	assert.Equal(t, "Brightness", src["brightness"].(map[string]interface{})["title"])
	assert.Equal(t, "a", src["tags"].([]interface{})[0])
}

func TestMergeIsIdempotent(t *testing.T) {
	src := document(t, `{"a":{"b":1,"c":{"d":"x"}},"e":true}`)
	dst := map[string]interface{}{}

	merge.Merge(dst, src)
	first := merge.Copy(dst)
	merge.Merge(dst, src)
	assert.Equal(t, first, dst)
}

func TestMergeKeepsExistingKeys(t *testing.T) {
	dst := document(t, `{"a":{"title":"Original"},"b":"keep"}`)
	src := document(t, `{"a":{"type":"integer"},"c":42}`)

	merge.Merge(dst, src)

	// existing object values gain the new nested keys but keep their own
	a := dst["a"].(map[string]interface{})
	assert.Equal(t, "Original", a["title"])
	assert.Equal(t, "integer", a["type"])
	assert.Equal(t, "keep", dst["b"])
	assert.Equal(t, float64(42), dst["c"])
}

func TestMergeFalsyDestinationTreatedAsAbsent(t *testing.T) {
	// false, 0 and "" do not block the merge
	dst := document(t, `{"flag":false,"count":0,"name":"","obj":{}}`)
	src := document(t, `{"flag":true,"count":7,"name":"set","obj":{"k":1}}`)

	merge.Merge(dst, src)

	assert.Equal(t, true, dst["flag"])
	assert.Equal(t, float64(7), dst["count"])
	assert.Equal(t, "set", dst["name"])
	assert.Equal(t, map[string]interface{}{"k": float64(1)}, dst["obj"])
}

func TestMergeScalarSourceReplacesAtRecursedPath(t *testing.T) {
	dst := document(t, `{"a":{"b":{"c":1}}}`)
	src := document(t, `{"a":{"b":"collapsed"}}`)

	merge.Merge(dst, src)
	assert.Equal(t, "collapsed", dst["a"].(map[string]interface{})["b"])
}

func TestMergeObjectSourceCannotReplaceTruthyScalar(t *testing.T) {
	dst := document(t, `{"a":"leaf"}`)
	src := document(t, `{"a":{"b":1}}`)

	merge.Merge(dst, src)
	assert.Equal(t, "leaf", dst["a"])
}

func TestCopyDeep(t *testing.T) {
	src := document(t, `{"a":{"b":[1,{"c":2}]}}`)
	dup := merge.Copy(src).(map[string]interface{})
	require.Equal(t, src, dup)

	dup["a"].(map[string]interface{})["b"].([]interface{})[1].(map[string]interface{})["c"] = float64(99)
	assert.Equal(t, float64(2), src["a"].(map[string]interface{})["b"].([]interface{})[1].(map[string]interface{})["c"])
}
