package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/janelia-flyem/reseg/dvid"
)

const (
	pointSchema = `{"type": "array", "items": {"type": "integer"}, "minItems": 2, "maxItems": 3}`
	idSchema    = `{"type": "string", "minLength": 1}`
	connSchema  = `{"type": "string", "enum": ["4", "8", "6", "18", "26"]}`
)

// requestSchemas are the JSON schemas of the POST bodies of each operation.
var requestSchemas = map[string]string{
	"reseg": `{
		"type": "object",
		"required": ["labels", "seeds"],
		"properties": {
			"labels": ` + idSchema + `,
			"features": ` + idSchema + `,
			"seeds": {"type": "array", "items": ` + pointSchema + `, "minItems": 2, "maxItems": 2},
			"connectivity": ` + connSchema + `,
			"arc": {"type": "string", "enum": ["uniform", "feature", "root"]},
			"path": {"type": "string"},
			"workers": {"type": "integer", "minimum": 1},
			"name": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"relabel": `{
		"type": "object",
		"required": ["labels"],
		"properties": {
			"labels": ` + idSchema + `,
			"connectivity": ` + connSchema + `,
			"slices": {"type": "boolean"},
			"name": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"multiscale": `{
		"type": "object",
		"required": ["stack", "anchors"],
		"properties": {
			"stack": ` + idSchema + `,
			"anchors": {"type": "array", "items": ` + pointSchema + `, "minItems": 2, "maxItems": 2},
			"connectivity": {"type": "string", "enum": ["4", "8"]},
			"relabel": {"type": "boolean"},
			"crop": {"type": "boolean"},
			"steps": {"type": "integer"},
			"segment": {"type": "boolean"},
			"path": {"type": "string"},
			"name": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"select": `{
		"type": "object",
		"required": ["labels", "point"],
		"properties": {
			"labels": ` + idSchema + `,
			"point": ` + pointSchema + `,
			"name": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"merge": `{
		"type": "object",
		"required": ["labels", "reseg"],
		"properties": {
			"labels": ` + idSchema + `,
			"reseg": ` + idSchema + `,
			"name": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"voronoi": `{
		"type": "object",
		"required": ["size", "seeds"],
		"properties": {
			"size": {"type": "array", "items": {"type": "integer", "minimum": 1}, "minItems": 2, "maxItems": 3},
			"seeds": {"type": "integer", "minimum": 1},
			"random_seed": {"type": "integer"},
			"name": {"type": "string"}
		},
		"additionalProperties": false
	}`,
}

// compileSchemas compiles every request schema.
func compileSchemas() (map[string]*jsonschema.Schema, error) {
	schemas := make(map[string]*jsonschema.Schema, len(requestSchemas))
	for op, schema := range requestSchemas {
		sch, err := jsonschema.CompileString(op+".json", schema)
		if err != nil {
			return nil, fmt.Errorf("compiling %s request schema: %v", op, err)
		}
		schemas[op] = sch
	}
	return schemas, nil
}

// decodeRequest reads a JSON body, validates it against the schema of op and decodes it
// into v.
func (s *Server) decodeRequest(r *http.Request, op string, v interface{}) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("reading %s request: %w", op, err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s request is not JSON (%v): %w", op, err, dvid.ErrInvalidArgument)
	}
	if err := s.schemas[op].Validate(doc); err != nil {
		return fmt.Errorf("invalid %s request (%v): %w", op, err, dvid.ErrInvalidArgument)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s request (%v): %w", op, err, dvid.ErrInvalidArgument)
	}
	return nil
}

// point converts a 2 or 3 element JSON coordinate.
func point(coords []int32) dvid.Point3d {
	var p dvid.Point3d
	copy(p[:], coords)
	return p
}
