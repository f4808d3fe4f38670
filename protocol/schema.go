package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"path"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var ErrUnknownEvent = errors.New("unknown event")

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func loadSchemas() {
	schemas = make(map[string]*jsonschema.Schema)
	for _, event := range []string{EventPlayerInput, EventGameState, EventGameStart, EventRequestID, EventAssignID} {
		name := event + ".schema.json"
		raw, err := schemaFS.ReadFile(path.Join("schemas", name))
		if err != nil {
			schemaErr = errors.Wrapf(err, "read schema %s", name)
			return
		}
		s, err := jsonschema.CompileString(name, string(raw))
		if err != nil {
			schemaErr = errors.Wrapf(err, "compile schema %s", name)
			return
		}
		schemas[event] = s
	}
}

// ValidatePayload 按事件名校验广播负载的结构
func ValidatePayload(event string, raw json.RawMessage) error {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemas[event]
	if !ok {
		return errors.Wrap(ErrUnknownEvent, event)
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return errors.Wrapf(err, "decode %s payload", event)
	}
	if err := s.Validate(v); err != nil {
		return errors.Wrapf(err, "validate %s payload", event)
	}
	return nil
}
