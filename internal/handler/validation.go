package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/qri-io/jsonschema"

	"github.com/sakif/consulthub/internal/apperror"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// REQUEST SHAPES:
// JSON Schema checks the types of known keys before any handler logic
// runs. Presence of required keys is checked separately so registration
// can report every missing field by name.
const notificationsSchema = `{
	"type": ["object", "null"],
	"properties": {
		"own_channel":     {"type": "boolean"},
		"general_channel": {"type": "boolean"}
	},
	"additionalProperties": false
}`

var (
	registerSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"username":      {"type": "string"},
			"email":         {"type": "string"},
			"password":      {"type": "string"},
			"field":         {"type": "string"},
			"notifications": ` + notificationsSchema + `
		}
	}`)

	loginSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"username": {"type": "string"},
			"password": {"type": "string"}
		}
	}`)

	questionSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"title":      {"type": "string"},
			"query_text": {"type": "string"}
		}
	}`)

	responseSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"content": {"type": "string"}
		}
	}`)

	profileSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"field":         {"type": ["string", "null"]},
			"notifications": ` + notificationsSchema + `
		}
	}`)
)

func mustSchema(src string) *jsonschema.Schema {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(src), rs); err != nil {
		panic(fmt.Sprintf("handler: compiling schema: %v", err))
	}
	return rs
}

// body is a decoded JSON object plus the top-level keys that failed the
// schema.
type body struct {
	raw     []byte
	fields  map[string]json.RawMessage
	invalid map[string]bool
}

// readBody reads and schema-checks a JSON object body.
func readBody(ctx context.Context, r *http.Request, schema *jsonschema.Schema) (*body, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperror.ValidationFailed("body", "Invalid or no JSON data")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, apperror.ValidationFailed("body", "Invalid or no JSON data")
	}

	keyErrs, err := schema.ValidateBytes(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("handler: validating body: %w", err)
	}

	invalid := make(map[string]bool)
	for _, ke := range keyErrs {
		invalid[topLevelKey(ke.PropertyPath)] = true
	}

	return &body{raw: raw, fields: fields, invalid: invalid}, nil
}

// topLevelKey turns "/notifications/own_channel" into "notifications".
func topLevelKey(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}

func (b *body) has(key string) bool {
	_, ok := b.fields[key]
	return ok
}

// missing returns {key: "Info required but missing"} for every absent key.
func (b *body) missing(keys ...string) map[string]string {
	out := make(map[string]string)
	for _, k := range keys {
		if !b.has(k) {
			out[k] = "Info required but missing"
		}
	}
	return out
}

// decode unmarshals the whole body into v. Call it only after the schema
// check, so type errors cannot happen here.
func (b *body) decode(v any) error {
	if err := json.Unmarshal(b.raw, v); err != nil {
		return apperror.ValidationFailed("body", "Invalid or no JSON data")
	}
	return nil
}

// RequireJSON rejects requests whose Content-Type is not JSON with 415.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || !isJSONMediaType(mt) {
			writeError(w, apperror.UnsupportedMedia("Invalid or no JSON data"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isJSONMediaType(mt string) bool {
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
