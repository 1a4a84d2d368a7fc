package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schemaErr  error
	schemas    map[string]*jsonschema.Schema
)

func loadSchemas() {
	c := jsonschema.NewCompiler()
	names := map[string]string{
		TypeHello: "hello.schema.json",
		TypeCmd:   "cmd.schema.json",
		TypeState: "state.schema.json",
	}
	for _, file := range names {
		b, err := schemaFS.ReadFile("schemas/" + file)
		if err != nil {
			schemaErr = err
			return
		}
		if err := c.AddResource("lumbercamp://schemas/"+file, bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("%s: %w", file, err)
			return
		}
	}
	schemas = make(map[string]*jsonschema.Schema, len(names))
	for typ, file := range names {
		s, err := c.Compile("lumbercamp://schemas/" + file)
		if err != nil {
			schemaErr = fmt.Errorf("%s: %w", file, err)
			return
		}
		schemas[typ] = s
	}
}

// Validate checks raw against the embedded schema for msgType. Types without
// a schema pass.
func Validate(msgType string, raw []byte) error {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemas[msgType]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

// ValidateCmd is Validate(TypeCmd, raw).
func ValidateCmd(raw []byte) error { return Validate(TypeCmd, raw) }

// SchemaJSON returns the raw schema document for msgType, for serving to clients.
func SchemaJSON(msgType string) ([]byte, bool) {
	file := map[string]string{
		TypeHello: "hello.schema.json",
		TypeCmd:   "cmd.schema.json",
		TypeState: "state.schema.json",
	}[msgType]
	if file == "" {
		return nil, false
	}
	b, err := schemaFS.ReadFile("schemas/" + file)
	return b, err == nil
}
