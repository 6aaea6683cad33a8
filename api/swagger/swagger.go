package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Datesheet API",
        "description": "Exam datesheet generation, storage and export.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "in": "header",
            "name": "Authorization"
        }
    },
    "tags": [
        {
            "name": "Auth",
            "description": "Administrator tokens"
        },
        {
            "name": "Datesheets",
            "description": "Generation, storage and publishing"
        },
        {
            "name": "Exports",
            "description": "CSV and PDF downloads"
        },
        {
            "name": "Holidays",
            "description": "Stored holiday calendar"
        }
    ],
    "paths": {
        "/auth/token": {
            "post": {
                "tags": [
                    "Auth"
                ],
                "summary": "Exchange administrator credentials for an access token",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Invalid credentials",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/TokenRequest"
                        }
                    }
                ]
            }
        },
        "/datesheets/template": {
            "get": {
                "tags": [
                    "Datesheets"
                ],
                "summary": "Starter subject table",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/datesheets/import": {
            "post": {
                "tags": [
                    "Datesheets"
                ],
                "summary": "Parse an uploaded subject table CSV",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "formData",
                        "name": "file",
                        "required": true,
                        "type": "file"
                    }
                ],
                "consumes": [
                    "multipart/form-data"
                ]
            }
        },
        "/datesheets/generate": {
            "post": {
                "tags": [
                    "Datesheets"
                ],
                "summary": "Generate a datesheet proposal",
                "responses": {
                    "200": {
                        "description": "Completed proposal",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "Stalled or day cap exceeded; data carries the partial proposal",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/GenerateDatesheetRequest"
                        }
                    }
                ]
            }
        },
        "/datesheets/variants": {
            "post": {
                "tags": [
                    "Datesheets"
                ],
                "summary": "Queue several datesheet variants",
                "responses": {
                    "202": {
                        "description": "Accepted",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/GenerateVariantsRequest"
                        }
                    }
                ]
            }
        },
        "/datesheets/variants/{id}": {
            "get": {
                "tags": [
                    "Datesheets"
                ],
                "summary": "Variant batch progress and results",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "type": "string"
                    }
                ]
            }
        },
        "/datesheets": {
            "get": {
                "tags": [
                    "Datesheets"
                ],
                "summary": "List stored datesheets",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "query",
                        "name": "title",
                        "type": "string"
                    },
                    {
                        "in": "query",
                        "name": "status",
                        "type": "string",
                        "enum": [
                            "draft",
                            "published"
                        ]
                    },
                    {
                        "in": "query",
                        "name": "page",
                        "type": "integer"
                    },
                    {
                        "in": "query",
                        "name": "pageSize",
                        "type": "integer"
                    }
                ]
            },
            "post": {
                "tags": [
                    "Datesheets"
                ],
                "summary": "Save a completed proposal as a draft datesheet",
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SaveDatesheetRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/datesheets/{id}": {
            "get": {
                "tags": [
                    "Datesheets"
                ],
                "summary": "Get a stored datesheet with its rows",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "type": "string"
                    }
                ]
            },
            "delete": {
                "tags": [
                    "Datesheets"
                ],
                "summary": "Delete a draft datesheet",
                "responses": {
                    "204": {
                        "description": "Deleted"
                    },
                    "409": {
                        "description": "Published",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "type": "string"
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/datesheets/{id}/publish": {
            "post": {
                "tags": [
                    "Datesheets"
                ],
                "summary": "Publish a draft datesheet",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "type": "string"
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/datesheets/{id}/export": {
            "post": {
                "tags": [
                    "Exports"
                ],
                "summary": "Export a stored datesheet as CSV or PDF",
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ExportDatesheetRequest"
                        }
                    }
                ]
            }
        },
        "/export/{token}": {
            "get": {
                "tags": [
                    "Exports"
                ],
                "summary": "Download an exported datesheet",
                "responses": {
                    "200": {
                        "description": "File",
                        "schema": {
                            "type": "file"
                        }
                    },
                    "403": {
                        "description": "Invalid or expired token",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "path",
                        "name": "token",
                        "required": true,
                        "type": "string"
                    }
                ],
                "produces": [
                    "application/octet-stream"
                ]
            }
        },
        "/holidays": {
            "get": {
                "tags": [
                    "Holidays"
                ],
                "summary": "List holidays",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "query",
                        "name": "from",
                        "type": "string"
                    },
                    {
                        "in": "query",
                        "name": "to",
                        "type": "string"
                    }
                ]
            },
            "post": {
                "tags": [
                    "Holidays"
                ],
                "summary": "Create holiday",
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/HolidayRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/holidays/{id}": {
            "put": {
                "tags": [
                    "Holidays"
                ],
                "summary": "Replace holiday",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/HolidayRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "delete": {
                "tags": [
                    "Holidays"
                ],
                "summary": "Delete holiday",
                "responses": {
                    "204": {
                        "description": "Deleted"
                    }
                },
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "type": "string"
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        }
    },
    "definitions": {
        "TokenRequest": {
            "type": "object",
            "required": [
                "username",
                "password"
            ],
            "properties": {
                "username": {
                    "type": "string"
                },
                "password": {
                    "type": "string"
                }
            }
        },
        "ClassSubjects": {
            "type": "object",
            "required": [
                "class"
            ],
            "properties": {
                "class": {
                    "type": "string"
                },
                "subjects": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "GenerateDatesheetRequest": {
            "type": "object",
            "required": [
                "classes",
                "startDate"
            ],
            "properties": {
                "classes": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ClassSubjects"
                    }
                },
                "startDate": {
                    "type": "string",
                    "example": "01-03-2024"
                },
                "holidays": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "useStoredHolidays": {
                    "type": "boolean"
                },
                "maxDays": {
                    "type": "integer"
                },
                "recency": {
                    "type": "string",
                    "enum": [
                        "per_class",
                        "daily"
                    ]
                },
                "syncCohorts": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "VariantSpec": {
            "type": "object",
            "required": [
                "startDate"
            ],
            "properties": {
                "label": {
                    "type": "string"
                },
                "startDate": {
                    "type": "string"
                },
                "holidays": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "GenerateVariantsRequest": {
            "type": "object",
            "required": [
                "classes",
                "variants"
            ],
            "properties": {
                "classes": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ClassSubjects"
                    }
                },
                "variants": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/VariantSpec"
                    }
                },
                "useStoredHolidays": {
                    "type": "boolean"
                },
                "maxDays": {
                    "type": "integer"
                },
                "recency": {
                    "type": "string",
                    "enum": [
                        "per_class",
                        "daily"
                    ]
                }
            }
        },
        "SaveDatesheetRequest": {
            "type": "object",
            "required": [
                "proposalId",
                "title"
            ],
            "properties": {
                "proposalId": {
                    "type": "string"
                },
                "title": {
                    "type": "string"
                }
            }
        },
        "ExportDatesheetRequest": {
            "type": "object",
            "required": [
                "format"
            ],
            "properties": {
                "format": {
                    "type": "string",
                    "enum": [
                        "csv",
                        "pdf"
                    ]
                }
            }
        },
        "HolidayRequest": {
            "type": "object",
            "required": [
                "name",
                "startDate"
            ],
            "properties": {
                "name": {
                    "type": "string"
                },
                "startDate": {
                    "type": "string"
                },
                "endDate": {
                    "type": "string"
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
