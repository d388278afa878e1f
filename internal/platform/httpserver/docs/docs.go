// Package docs registers the OpenAPI document served under /swagger/.
// The document mirrors the godoc annotations on the register HTTP handler.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/calls": {
            "get": {
                "produces": ["application/json"],
                "tags": ["call-vote-register"],
                "summary": "List call ids with votes",
                "description": "Sorted ascending. Empty register yields an empty list.",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.CallIDsResponse"}}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["call-vote-register"],
                "summary": "Clear every call's votes",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.ClearResponse"}}
                }
            }
        },
        "/v1/calls/{call_id}/verdict": {
            "get": {
                "produces": ["application/json"],
                "tags": ["call-vote-register"],
                "summary": "Get the verdict for a call",
                "description": "Majority of legitimate vs fraudulent flags. Ties are inconclusive.",
                "parameters": [
                    {"type": "string", "description": "Call id", "name": "call_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.VerdictResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/v1/calls/{call_id}/votes": {
            "get": {
                "produces": ["application/json"],
                "tags": ["call-vote-register"],
                "summary": "Get the recorded votes of a call",
                "description": "votes is null when the call was never voted on, and in submission order otherwise.",
                "parameters": [
                    {"type": "string", "description": "Call id", "name": "call_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.VotesResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["call-vote-register"],
                "summary": "Record a vote for a call",
                "description": "Appends one ballot to the call's vote list. Both flags are accepted as submitted.",
                "parameters": [
                    {"type": "string", "description": "Call id", "name": "call_id", "in": "path", "required": true},
                    {"description": "Ballot", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.AddVoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.AddVoteResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["call-vote-register"],
                "summary": "Clear the votes of one call",
                "parameters": [
                    {"type": "string", "description": "Call id", "name": "call_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.ClearResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "http.AddVoteRequest": {
            "type": "object",
            "properties": {
                "fraudulent": {"type": "boolean"},
                "legitimate": {"type": "boolean"}
            }
        },
        "http.AddVoteResponse": {
            "type": "object",
            "properties": {
                "call_id": {"type": "string"},
                "fraudulent_count": {"type": "integer"},
                "legitimate_count": {"type": "integer"},
                "message": {"type": "string"},
                "total_votes": {"type": "integer"},
                "verdict": {"type": "string"}
            }
        },
        "http.CallIDsResponse": {
            "type": "object",
            "properties": {
                "call_ids": {"type": "array", "items": {"type": "string"}},
                "count": {"type": "integer"}
            }
        },
        "http.ClearResponse": {
            "type": "object",
            "properties": {
                "existed": {"type": "boolean"},
                "message": {"type": "string"},
                "removed_calls": {"type": "integer"}
            }
        },
        "http.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "http.VerdictResponse": {
            "type": "object",
            "properties": {
                "call_id": {"type": "string"},
                "fraudulent_count": {"type": "integer"},
                "legitimate_count": {"type": "integer"},
                "message": {"type": "string"},
                "total_votes": {"type": "integer"},
                "verdict": {"type": "string"}
            }
        },
        "http.VoteItem": {
            "type": "object",
            "properties": {
                "fraudulent": {"type": "boolean"},
                "legitimate": {"type": "boolean"}
            }
        },
        "http.VotesResponse": {
            "type": "object",
            "properties": {
                "call_id": {"type": "string"},
                "found": {"type": "boolean"},
                "votes": {"type": "array", "items": {"$ref": "#/definitions/http.VoteItem"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "istruecaller API",
	Description:      "Call legitimacy voting register.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
