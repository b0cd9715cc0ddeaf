// Package docs registra la especificación OpenAPI que sirve /swagger/*.
// Se regenera con `swag init -g cmd/api/main.go`; las anotaciones viven en los handlers.
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
        "/authorizations/request": {
            "post": {
                "tags": ["authorizations"],
                "summary": "Solicitar acceso al historial de un paciente",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/accessgrants.requestAccessBody"}}],
                "responses": {
                    "200": {"description": "PENDING existente reutilizado", "schema": {"$ref": "#/definitions/accessgrants.requestAccessResponse"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/accessgrants.requestAccessResponse"}},
                    "400": {"description": "validation", "schema": {"$ref": "#/definitions/httpjson.ErrorBody"}},
                    "401": {"description": "unauthorized", "schema": {"$ref": "#/definitions/httpjson.ErrorBody"}},
                    "403": {"description": "forbidden", "schema": {"$ref": "#/definitions/httpjson.ErrorBody"}},
                    "404": {"description": "paciente no encontrado", "schema": {"$ref": "#/definitions/httpjson.ErrorBody"}}
                }
            }
        },
        "/authorizations/approve": {
            "patch": {
                "tags": ["authorizations"],
                "summary": "Aprobar una solicitud PENDING",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/accessgrants.decisionBody"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/accessgrants.decisionResponse"}},
                    "404": {"description": "not found", "schema": {"$ref": "#/definitions/httpjson.ErrorBody"}},
                    "409": {"description": "estado inválido", "schema": {"$ref": "#/definitions/httpjson.ErrorBody"}}
                }
            }
        },
        "/authorizations/deny": {
            "patch": {
                "tags": ["authorizations"],
                "summary": "Denegar una solicitud PENDING",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/accessgrants.decisionBody"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/accessgrants.decisionResponse"}},
                    "409": {"description": "estado inválido", "schema": {"$ref": "#/definitions/httpjson.ErrorBody"}}
                }
            }
        },
        "/authorizations/revoke": {
            "patch": {
                "tags": ["authorizations"],
                "summary": "Revocar un grant PENDING o ACTIVE",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/accessgrants.decisionBody"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/accessgrants.decisionResponse"}},
                    "409": {"description": "estado inválido", "schema": {"$ref": "#/definitions/httpjson.ErrorBody"}}
                }
            }
        },
        "/me/authorizations": {
            "get": {
                "tags": ["authorizations"],
                "summary": "Grants sobre mi registro",
                "parameters": [{"in": "query", "name": "status", "type": "string", "description": "PENDING,ACTIVE,EXPIRED,REVOKED"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/me/patient/qr": {
            "get": {
                "tags": ["patients"],
                "summary": "QR de solicitud de acceso",
                "responses": {"200": {"description": "OK"}, "404": {"description": "sin registro"}}
            }
        },
        "/patients/{patientID}": {
            "get": {
                "tags": ["patients"],
                "summary": "Registro de un paciente",
                "parameters": [{"in": "path", "name": "patientID", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "forbidden"}, "404": {"description": "not found"}}
            }
        },
        "/patients/{patientID}/encounters": {
            "post": {
                "tags": ["encounters"],
                "summary": "Crear encounter (canCreateEncounters)",
                "parameters": [{"in": "path", "name": "patientID", "type": "string", "required": true}],
                "responses": {"201": {"description": "Created"}, "403": {"description": "forbidden"}}
            },
            "get": {
                "tags": ["encounters"],
                "summary": "Listar encounters (canViewMedicalHistory)",
                "parameters": [{"in": "path", "name": "patientID", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "forbidden"}}
            }
        },
        "/patients/{patientID}/prescriptions": {
            "get": {
                "tags": ["prescriptions"],
                "summary": "Listar recetas (canViewPrescriptions)",
                "parameters": [{"in": "path", "name": "patientID", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "forbidden"}}
            }
        },
        "/patients/{patientID}/audit": {
            "get": {
                "tags": ["audit"],
                "summary": "Audit log del paciente (canViewAuditLogs)",
                "parameters": [{"in": "path", "name": "patientID", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "forbidden"}}
            }
        },
        "/me/notifications": {
            "get": {
                "tags": ["notifications"],
                "summary": "Mis notificaciones",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "httpjson.ErrorBody": {
            "type": "object",
            "properties": {"success": {"type": "boolean"}, "error": {"type": "string"}}
        },
        "accessgrants.accessScopeBody": {
            "type": "object",
            "properties": {
                "canViewMedicalHistory": {"type": "boolean"},
                "canViewPrescriptions": {"type": "boolean"},
                "canCreateEncounters": {"type": "boolean"},
                "canViewAuditLogs": {"type": "boolean"}
            }
        },
        "accessgrants.requestAccessBody": {
            "type": "object",
            "required": ["scannedQRData", "organizationId", "requestingPractitionerId"],
            "properties": {
                "scannedQRData": {"type": "string"},
                "organizationId": {"type": "string"},
                "requestingPractitionerId": {"type": "string"},
                "accessScope": {"$ref": "#/definitions/accessgrants.accessScopeBody"},
                "timeWindowHours": {"type": "integer"},
                "deviceInfo": {"type": "string"}
            }
        },
        "accessgrants.requestAccessResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "grantId": {"type": "string"},
                "status": {"type": "string"},
                "expiresAt": {"type": "string"},
                "deduplicated": {"type": "boolean"}
            }
        },
        "accessgrants.decisionBody": {
            "type": "object",
            "required": ["grantId"],
            "properties": {"grantId": {"type": "string"}, "reason": {"type": "string"}}
        },
        "accessgrants.decisionResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "grantId": {"type": "string"},
                "newStatus": {"type": "string"},
                "grantedAt": {"type": "string"},
                "expiresAt": {"type": "string"},
                "revokedAt": {"type": "string"}
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
	Title:            "Patient Access API",
	Description:      "Autorizaciones temporales de acceso al historial clínico, otorgadas por el paciente vía QR.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
