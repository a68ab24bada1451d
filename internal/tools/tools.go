// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package tools holds the closed catalog of backend tools the reasoning
// provider may call, and the router that dispatches those calls to the org
// and rag services.
package tools

import "encoding/json"

// Service names a tool backend.
type Service string

const (
	ServiceOrg Service = "org"
	ServiceRAG Service = "rag"
)

// Tool is one validated tool invocation. The set of implementations is
// closed; each variant decodes and validates its own arguments.
type Tool interface {
	// Name is the tool name exposed to providers.
	Name() string
	// Service is the backend that serves the call.
	Service() Service
	// Endpoint is the path below the service base URL.
	Endpoint() string
	// Payload is the JSON request body.
	Payload() any

	tool()
}

// System identifies the CRM platform behind the org service.
type System string

const (
	SystemSalesforce System = "salesforce"
	SystemServiceNow System = "servicenow"
)

var systems = []string{string(SystemSalesforce), string(SystemServiceNow)}

// Entities lists the CRM objects the org tools may describe.
var Entities = []string{
	"Account", "Contact", "Lead", "Opportunity", "Case",
	"AccountHistory", "ContactHistory", "LeadHistory", "OpportunityHistory", "CaseHistory",
}

// DefaultSearchResults is the rag_search result count when k is omitted.
const DefaultSearchResults = 3

// DescribeEntityCall fetches the schema of one CRM object.
type DescribeEntityCall struct {
	System     System `json:"system"`
	EntityName string `json:"entityName"`
}

func (DescribeEntityCall) Name() string { return "org_describeEntity" }
func (DescribeEntityCall) Service() Service { return ServiceOrg }
func (DescribeEntityCall) Endpoint() string { return "describeEntity" }
func (c DescribeEntityCall) Payload() any { return c }
func (DescribeEntityCall) tool() {}

// QueryEntitiesCall runs a query against the CRM.
type QueryEntitiesCall struct {
	System System `json:"system"`
	Query  string `json:"query"`
}

func (QueryEntitiesCall) Name() string { return "org_queryEntities" }
func (QueryEntitiesCall) Service() Service { return ServiceOrg }
func (QueryEntitiesCall) Endpoint() string { return "queryEntities" }
func (c QueryEntitiesCall) Payload() any { return c }
func (QueryEntitiesCall) tool() {}

// UpdateEntityCall changes fields on one CRM record. Data is never empty.
type UpdateEntityCall struct {
	System     System          `json:"system"`
	EntityName string          `json:"entityName"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
}

func (UpdateEntityCall) Name() string { return "org_updateEntity" }
func (UpdateEntityCall) Service() Service { return ServiceOrg }
func (UpdateEntityCall) Endpoint() string { return "updateEntity" }
func (c UpdateEntityCall) Payload() any { return c }
func (UpdateEntityCall) tool() {}

// RAGSearchCall searches the knowledge base.
type RAGSearchCall struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (RAGSearchCall) Name() string { return "rag_search" }
func (RAGSearchCall) Service() Service { return ServiceRAG }
func (RAGSearchCall) Endpoint() string { return "search" }
func (c RAGSearchCall) Payload() any { return c }
func (RAGSearchCall) tool() {}
