package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "PMB API",
        "description": "Student admission backend: registration, approval with NIM assignment, admission letters and roster exports.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Administrator login"},
        {"name": "Programs", "description": "Study programs and NIM counters"},
        {"name": "Candidates", "description": "Registration, status and approval"},
        {"name": "Letters", "description": "Admission letters"},
        {"name": "Exports", "description": "Admitted roster exports"},
        {"name": "System", "description": "Health and metrics"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate administrator",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Get current user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/programs": {
            "get": {
                "tags": ["Programs"],
                "summary": "List study programs",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/nim-counters": {
            "get": {
                "tags": ["Programs"],
                "summary": "List NIM counters",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "year", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid year", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/candidates": {
            "get": {
                "tags": ["Candidates"],
                "summary": "List candidates",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending", "approved", "rejected"]},
                    {"name": "program", "in": "query", "type": "string"},
                    {"name": "q", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string", "enum": ["created_at", "full_name", "approved_at", "nim"]},
                    {"name": "order", "in": "query", "type": "string", "enum": ["asc", "desc"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Candidates"],
                "summary": "Register candidate",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterCandidateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/candidates/{id}": {
            "get": {
                "tags": ["Candidates"],
                "summary": "Candidate status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/candidates/{id}/approve": {
            "post": {
                "tags": ["Candidates"],
                "summary": "Approve candidate and assign NIM",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Candidate rejected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Retry later, see Retry-After", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/candidates/{id}/letter": {
            "get": {
                "tags": ["Letters"],
                "summary": "Admission letter link",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Candidate not approved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/letters/download": {
            "get": {
                "tags": ["Letters"],
                "summary": "Download admission letter",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF document"},
                    "403": {"description": "Link expired or invalid", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admissions/export": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export admitted roster",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "year", "in": "query", "type": "integer"},
                    {"name": "program", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "CSV document"}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["System"],
                "summary": "Metrics summary",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "RegisterCandidateRequest": {
            "type": "object",
            "required": ["full_name", "email", "phone", "birth_date", "admission_path"],
            "properties": {
                "full_name": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "birth_date": {"type": "string", "format": "date"},
                "address": {"type": "string"},
                "program_code": {"type": "string"},
                "program_id": {"type": "string"},
                "admission_path": {"type": "string", "enum": ["SNBP", "SNBT", "Mandiri"]}
            }
        },
        "ApprovalResult": {
            "type": "object",
            "properties": {
                "candidate_id": {"type": "string"},
                "nim": {"type": "string"},
                "status": {"type": "string"},
                "approved_at": {"type": "string", "format": "date-time"},
                "already_approved": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "retryable": {"type": "boolean"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
