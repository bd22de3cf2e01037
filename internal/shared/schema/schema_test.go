package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"age": {"type": "integer", "minimum": 0}
	}
}`

func TestValidate(t *testing.T) {
	s, err := Compile("person", personSchema)
	require.NoError(t, err)

	assert.NoError(t, Validate(s, []byte(`{"name":"ada","age":36}`)))
	assert.Error(t, Validate(s, []byte(`{"age":36}`)))
	assert.Error(t, Validate(s, []byte(`{"name":"ada","age":-1}`)))
	assert.Error(t, Validate(s, []byte(`{"name":`)))
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile("empty", "")
	assert.Error(t, err)

	_, err = Compile("broken", `{"type": 12}`)
	assert.Error(t, err)

	assert.Panics(t, func() { MustCompile("broken", `{`) })
}
