package api

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func mustCompile(name, schemaJSON string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schemaJSON)); err != nil {
		panic("api: invalid embedded schema " + name + ": " + err.Error())
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic("api: could not compile schema " + name + ": " + err.Error())
	}
	return schema
}

var intentSchema = mustCompile("intent.json", `{
	"type": "object",
	"required": ["id", "objective", "priority"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"objective": {"type": "string", "minLength": 1},
		"priority": {"type": "integer", "minimum": 1, "maximum": 100},
		"cost_ceiling": {"type": "number"},
		"created_by": {"type": "string"},
		"active": {"type": "boolean"}
	}
}`)

var entitySchema = mustCompile("entity.json", `{
	"type": "object",
	"required": ["entity_type", "entity_id"],
	"properties": {
		"entity_type": {"type": "string", "minLength": 1},
		"entity_id": {"type": "string", "minLength": 1},
		"properties": {"type": "object"},
		"source": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`)

var evaluateSchema = mustCompile("evaluate.json", `{
	"type": "object",
	"required": ["proposal"],
	"properties": {
		"proposal": {
			"type": "object",
			"required": ["intent_id", "actions"],
			"properties": {
				"intent_id": {"type": "string", "minLength": 1},
				"actions": {"type": "array", "minItems": 1}
			}
		},
		"action_type_id": {"type": "string"}
	}
}`)

var resolveSchema = mustCompile("resolve.json", `{
	"type": "object",
	"required": ["resolution"],
	"properties": {
		"resolution": {"type": "string", "enum": ["approved", "denied", "manual_override"]},
		"resolved_by": {"type": "string"}
	}
}`)
