/*Package merge provides the recursive JSON document merge used to combine
firmware-defined schema fragments with device-defined ones.

Documents are generic JSON trees, i.e. map[string]interface{} objects with
[]interface{} arrays and float64/string/bool/nil leaves, as produced by
unmarshalling into interface{}.
*/
package merge

// Merge merges src into dst, mutating dst in place. For each source key the
// rules are:
//   - destination value absent or falsy: assign a deep copy of the source value
//   - both sides objects: merge recursively
//   - source is an object but the destination holds a truthy non-object:
//     the destination value is kept
//   - source is not an object: it replaces the destination value
//
// A falsy destination value (null, false, 0, "") counts as absent. Empty
// objects and arrays are truthy.
func Merge(dst map[string]interface{}, src map[string]interface{}) {
	for key, value := range src {
		if truthy(dst[key]) {
			if srcObject, ok := value.(map[string]interface{}); ok {
				if dstObject, ok := dst[key].(map[string]interface{}); ok {
					Merge(dstObject, srcObject)
				}
				// an object cannot merge into a truthy scalar
				continue
			}
			// non-object source replaces whatever is there
		}
		dst[key] = Copy(value)
	}
}

// Copy returns a structural deep copy of a JSON value. Scalars are returned
// as-is, objects and arrays are copied recursively.
func Copy(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		object := make(map[string]interface{}, len(v))
		for key, element := range v {
			object[key] = Copy(element)
		}
		return object
	case []interface{}:
		array := make([]interface{}, len(v))
		for i, element := range v {
			array[i] = Copy(element)
		}
		return array
	default:
		return v
	}
}

// truthy reports whether a destination value blocks plain assignment during
// a merge. This mirrors the boolean conversion of dynamically typed JSON
// values: null, false, 0 and "" count as absent.
func truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case string:
		return v != ""
	default:
		// objects and arrays, including empty ones
		return true
	}
}
