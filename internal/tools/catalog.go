// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tools

import (
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/sigil-dev/cloak/internal/provider"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

type catalogEntry struct {
	definition provider.ToolDefinition
	parse      func(args gjson.Result) (Tool, error)
}

var catalog = []catalogEntry{
	{
		definition: provider.ToolDefinition{
			Name:        DescribeEntityCall{}.Name(),
			Description: "Get the schema of a core banking CRM entity (Account, Contact, Lead, Opportunity, Case) or its History object.",
			InputSchema: objectSchema(map[string]any{
				"system":     enumSchema(systems),
				"entityName": enumSchema(Entities),
			}, "system", "entityName"),
		},
		parse: parseDescribeEntity,
	},
	{
		definition: provider.ToolDefinition{
			Name:        QueryEntitiesCall{}.Name(),
			Description: "Run a SOQL query against core banking CRM objects and their History objects.",
			InputSchema: objectSchema(map[string]any{
				"system": enumSchema(systems),
				"query":  stringSchema("SOQL query restricted to core banking and History objects."),
			}, "system", "query"),
		},
		parse: parseQueryEntities,
	},
	{
		definition: provider.ToolDefinition{
			Name:        UpdateEntityCall{}.Name(),
			Description: "Update one core banking CRM record. Requires user confirmation before calling.",
			InputSchema: objectSchema(map[string]any{
				"system":     enumSchema(systems),
				"entityName": map[string]any{"type": "string"},
				"id":         stringSchema("Identifier of the record."),
				"data": map[string]any{
					"type":        "object",
					"description": `Fields to update, for example {"BillingPostalCode": "67676"}. Must not be empty.`,
				},
			}, "system", "entityName", "id", "data"),
		},
		parse: parseUpdateEntity,
	},
	{
		definition: provider.ToolDefinition{
			Name:        RAGSearchCall{}.Name(),
			Description: "Search the banking knowledge base for policies, process documents and FAQs.",
			InputSchema: objectSchema(map[string]any{
				"query": stringSchema("Semantic search query."),
				"k": map[string]any{
					"type":        "number",
					"description": "Number of results to return (default 3).",
				},
			}, "query"),
		},
		parse: parseRAGSearch,
	},
}

// Definitions returns the tool list sent to providers, in catalog order.
func Definitions() []provider.ToolDefinition {
	return lo.Map(catalog, func(e catalogEntry, _ int) provider.ToolDefinition {
		return e.definition
	})
}

// Names returns the tool names in catalog order.
func Names() []string {
	return lo.Map(catalog, func(e catalogEntry, _ int) string {
		return e.definition.Name
	})
}

// Parse decodes and validates a call by tool name. Unknown names yield
// CodeToolNotFound; bad arguments yield CodeToolArgumentsInvalid.
func Parse(name, arguments string) (Tool, error) {
	entry, ok := lo.Find(catalog, func(e catalogEntry) bool {
		return e.definition.Name == name
	})
	if !ok {
		return nil, cloakerr.New(cloakerr.CodeToolNotFound, "Unknown tool: "+name, cloakerr.FieldTool(name))
	}

	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	if !gjson.Valid(arguments) {
		return nil, cloakerr.New(cloakerr.CodeToolArgumentsInvalid, "arguments are not valid JSON", cloakerr.FieldTool(name))
	}
	args := gjson.Parse(arguments)
	if !args.IsObject() {
		return nil, cloakerr.New(cloakerr.CodeToolArgumentsInvalid, "arguments must be a JSON object", cloakerr.FieldTool(name))
	}

	t, err := entry.parse(args)
	if err != nil {
		return nil, cloakerr.With(err, cloakerr.FieldTool(name))
	}
	return t, nil
}

func parseDescribeEntity(args gjson.Result) (Tool, error) {
	system, err := systemArg(args)
	if err != nil {
		return nil, err
	}
	entity, err := requiredString(args, "entityName")
	if err != nil {
		return nil, err
	}
	if !lo.Contains(Entities, entity) {
		return nil, cloakerr.Errorf(cloakerr.CodeToolArgumentsInvalid, "unsupported entityName %q", entity)
	}
	return DescribeEntityCall{System: system, EntityName: entity}, nil
}

func parseQueryEntities(args gjson.Result) (Tool, error) {
	system, err := systemArg(args)
	if err != nil {
		return nil, err
	}
	query, err := requiredString(args, "query")
	if err != nil {
		return nil, err
	}
	return QueryEntitiesCall{System: system, Query: query}, nil
}

func parseUpdateEntity(args gjson.Result) (Tool, error) {
	system, err := systemArg(args)
	if err != nil {
		return nil, err
	}
	entity, err := requiredString(args, "entityName")
	if err != nil {
		return nil, err
	}
	id, err := requiredString(args, "id")
	if err != nil {
		return nil, err
	}
	data := args.Get("data")
	if !data.IsObject() || len(data.Map()) == 0 {
		return nil, cloakerr.New(cloakerr.CodeToolArgumentsInvalid, "data must be a non-empty object")
	}
	return UpdateEntityCall{System: system, EntityName: entity, ID: id, Data: []byte(data.Raw)}, nil
}

func parseRAGSearch(args gjson.Result) (Tool, error) {
	query, err := requiredString(args, "query")
	if err != nil {
		return nil, err
	}
	k := DefaultSearchResults
	if v := args.Get("k"); v.Exists() && v.Type != gjson.Null {
		if v.Type != gjson.Number || v.Int() < 1 {
			return nil, cloakerr.New(cloakerr.CodeToolArgumentsInvalid, "k must be a positive number")
		}
		k = int(v.Int())
	}
	return RAGSearchCall{Query: query, K: k}, nil
}

func systemArg(args gjson.Result) (System, error) {
	s, err := requiredString(args, "system")
	if err != nil {
		return "", err
	}
	if !lo.Contains(systems, s) {
		return "", cloakerr.Errorf(cloakerr.CodeToolArgumentsInvalid, "unsupported system %q", s)
	}
	return System(s), nil
}

func requiredString(args gjson.Result, key string) (string, error) {
	v := args.Get(key)
	if v.Type != gjson.String || strings.TrimSpace(v.Str) == "" {
		return "", cloakerr.Errorf(cloakerr.CodeToolArgumentsInvalid, "missing required argument %q", key)
	}
	return v.Str, nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func enumSchema(values []string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

func stringSchema(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
