package api

import (
	"fmt"

	"github.com/mattjoyce/kpmd/internal/auth"
	"github.com/mattjoyce/kpmd/internal/kpm"
)

// commandFields lists the request body fields each command reads.
var commandFields = map[kpm.ControlCode][]string{
	kpm.CodeLoad:    {"path", "args"},
	kpm.CodeUnload:  {"name"},
	kpm.CodeNum:     nil,
	kpm.CodeList:    {"capacity"},
	kpm.CodeInfo:    {"name"},
	kpm.CodeControl: {"name", "args"},
	kpm.CodeVersion: {"capacity"},
}

var fieldSchemas = map[string]map[string]any{
	"path":     {"type": "string", "maxLength": kpm.PathLen - 1},
	"name":     {"type": "string"},
	"args":     {"type": "string", "maxLength": kpm.ArgsLen - 1},
	"capacity": {"type": "integer", "minimum": 0, "maximum": kpm.MaxCapacity},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document covering every command.
func buildOpenAPIDoc() map[string]any {
	paths := map[string]any{}
	for code := kpm.CodeMin; code < kpm.CodeMax; code++ {
		paths[fmt.Sprintf("/v1/kpm/%s", code)] = map[string]any{
			"post": commandOperation(code),
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "kpmd control plane",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func commandOperation(code kpm.ControlCode) map[string]any {
	scope := auth.ScopeRead
	if code.Mutating() {
		scope = auth.ScopeWrite
	}

	operation := map[string]any{
		"operationId": "kpm__" + code.String(),
		"summary":     fmt.Sprintf("%s (control code %d, scope %s)", code, uint64(code), scope),
		"tags":        []string{"kpm"},
		"responses": map[string]any{
			"200": map[string]any{"description": "Result written to the caller"},
			"400": map[string]any{"description": "Bad request"},
			"403": map[string]any{"description": "Insufficient scope"},
		},
		"security": []any{map[string]any{"BearerAuth": []string{}}},
	}

	fields := commandFields[code]
	if len(fields) == 0 {
		return operation
	}
	props := map[string]any{}
	for _, f := range fields {
		props[f] = fieldSchemas[f]
	}
	operation["requestBody"] = map[string]any{
		"required": false,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{
					"type":                 "object",
					"properties":           props,
					"additionalProperties": false,
				},
			},
		},
	}
	return operation
}
