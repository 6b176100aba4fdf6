/*Package schema holds the configuration and command schema fragments that
firmware registers at startup, and validates incoming JSON documents against
the resulting schemas.

A fragment is a JSON-Schema-style object whose keys each describe one
configurable property. The device merges its own reserved properties with the
firmware fragments when it builds an adoption report.
*/
package schema

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/oxrs-io/oxrs-go/core/merge"
)

// Version is the JSON-Schema draft referenced by generated schema envelopes.
const Version = "http://json-schema.org/draft-07/schema#"

// Registry holds the two firmware-supplied schema fragments. Fragments are
// set during firmware startup and read whenever an adoption report is built.
//
// The zero value is not usable, use NewRegistry.
type Registry struct {
	mutex   sync.RWMutex
	config  map[string]interface{}
	command map[string]interface{}
}

// NewRegistry returns a registry with empty config and command fragments.
func NewRegistry() *Registry {
	return &Registry{
		config:  map[string]interface{}{},
		command: map[string]interface{}{},
	}
}

// SetConfigSchema replaces the stored config fragment. The stored fragment is
// cleared first and the supplied fragment merged into the empty document, so
// repeated calls replace rather than accumulate. A nil fragment leaves the
// stored fragment empty.
func (r *Registry) SetConfigSchema(fragment map[string]interface{}) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.config = map[string]interface{}{}
	if fragment != nil {
		merge.Merge(r.config, fragment)
	}
}

// SetCommandSchema replaces the stored command fragment, with the same
// clear-then-merge semantics as SetConfigSchema.
func (r *Registry) SetCommandSchema(fragment map[string]interface{}) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.command = map[string]interface{}{}
	if fragment != nil {
		merge.Merge(r.command, fragment)
	}
}

// ConfigSchema returns a deep copy of the stored config fragment. Callers can
// merge the copy into their own documents without affecting registry state.
func (r *Registry) ConfigSchema() map[string]interface{} {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return merge.Copy(r.config).(map[string]interface{})
}

// CommandSchema returns a deep copy of the stored command fragment.
func (r *Registry) CommandSchema() map[string]interface{} {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return merge.Copy(r.command).(map[string]interface{})
}

// Envelope wraps a properties object into a JSON-Schema document of type
// "object", the shape served in adoption reports.
func Envelope(title string, properties map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"$schema":    Version,
		"title":      title,
		"type":       "object",
		"properties": properties,
	}
}

// Validate validates a JSON document against a schema document. If no error is
// returned, then the passed document is valid.
func Validate(document, schema map[string]interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("cannot validate document %s", err)
	}

	if !result.Valid() {
		msg := "the document is not valid :\n"
		for _, e := range result.Errors() {
			msg += fmt.Sprintf("- %s\n", e)
		}
		return errors.New(msg)
	}
	return nil
}
