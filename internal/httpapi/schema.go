package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("invalid request")

var chatSchema = jsonschema.MustCompileString("chat.json", `{
	"type": "object",
	"required": ["message"],
	"properties": {
		"message": {"type": "string", "minLength": 1, "maxLength": 10000},
		"session_token": {"type": "string"},
		"user_id": {"type": "string"},
		"model": {"type": "string"},
		"temperature": {"type": "number", "minimum": 0, "maximum": 2},
		"max_tokens": {"type": "integer", "minimum": 1}
	}
}`)

var memorySchema = jsonschema.MustCompileString("memory.json", `{
	"type": "object",
	"required": ["content"],
	"properties": {
		"content": {"type": "string", "minLength": 1},
		"category": {"enum": ["fact", "conversation", "note"]},
		"key": {"type": "string", "maxLength": 200},
		"data": {}
	}
}`)

func decodeBody(r *http.Request, schema *jsonschema.Schema, dst any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", errBadRequest, err)
	}
	return decodeJSON(data, schema, dst)
}

// decodeJSON validates data against schema before unmarshalling it into dst.
func decodeJSON(data []byte, schema *jsonschema.Schema, dst any) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: body is not valid JSON", errBadRequest)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s", errBadRequest, describe(err))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// describe reduces a schema validation error to its innermost cause.
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + ve.Message
}
