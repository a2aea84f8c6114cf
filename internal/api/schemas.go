package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"bizsim/internal/game"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://bizsim.local/schemas/"

type sectionSchemas map[game.Section]*jsonschema.Schema

func compileSectionSchemas() (sectionSchemas, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	out := make(sectionSchemas, len(game.Sections))
	for _, sec := range game.Sections {
		name := string(sec) + ".schema.json"
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := c.AddResource(schemaBaseURL+name, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		s, err := c.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		out[sec] = s
	}
	return out, nil
}

// validate checks raw against the section's schema. Schema failures are
// reported as invalid decisions so they map to 400.
func (s sectionSchemas) validate(sec game.Section, raw []byte) error {
	schema, ok := s[sec]
	if !ok {
		return fmt.Errorf("%w: %q", game.ErrInvalidSection, sec)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", game.ErrInvalidDecisions, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", game.ErrInvalidDecisions, err)
	}
	return nil
}
