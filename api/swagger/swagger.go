package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Rollcall API",
        "description": "Classroom attendance service with live sessions, OTP and QR check-in",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and token issuance"},
        {"name": "Attendance Sessions", "description": "Live attendance sessions and check-ins"},
        {"name": "Attendance Reports", "description": "Persisted attendance listings and exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/courses/{courseId}/attendance/sessions": {
            "post": {
                "tags": ["Attendance Sessions"],
                "summary": "Open an attendance session",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OpenSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session already open"},
                    "422": {"description": "Course location not configured"}
                }
            }
        },
        "/courses/{courseId}/attendance/check-in": {
            "post": {
                "tags": ["Attendance Sessions"],
                "summary": "Check in to the open session",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckInRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid or expired code"},
                    "410": {"description": "Session expired"}
                }
            }
        },
        "/courses/{courseId}/attendance/sessions/current": {
            "get": {
                "tags": ["Attendance Sessions"],
                "summary": "Live session status",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No open session"}
                }
            },
            "delete": {
                "tags": ["Attendance Sessions"],
                "summary": "Close the open session",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "Closed"},
                    "404": {"description": "No open session"}
                }
            }
        },
        "/courses/{courseId}/attendance/sessions/current/students/{studentId}/check-in": {
            "post": {
                "tags": ["Attendance Sessions"],
                "summary": "Manually mark a student present",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true},
                    {"name": "studentId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the course owner"},
                    "404": {"description": "No open session or student not on roster"},
                    "410": {"description": "Session expired"}
                }
            }
        },
        "/courses/{courseId}/attendance/sessions/current/qr.png": {
            "get": {
                "tags": ["Attendance Sessions"],
                "summary": "Session QR code",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true}
                ],
                "produces": ["image/png"],
                "responses": {
                    "200": {"description": "PNG image"},
                    "404": {"description": "No open session"}
                }
            }
        },
        "/attendance": {
            "get": {
                "tags": ["Attendance Reports"],
                "summary": "List attendance records",
                "parameters": [
                    {"name": "course_id", "in": "query", "type": "string"},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/export": {
            "get": {
                "tags": ["Attendance Reports"],
                "summary": "Export attendance records",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "required": true},
                    {"name": "course_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "OpenSessionRequest": {
            "type": "object",
            "properties": {
                "otp": {"type": "boolean"},
                "qr": {"type": "boolean"},
                "duration_minutes": {"type": "integer"},
                "strict_mode": {"type": "boolean"},
                "use_course_location": {"type": "boolean"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "tolerance_meters": {"type": "number"}
            }
        },
        "CheckInRequest": {
            "type": "object",
            "properties": {
                "credential": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"}
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
                "status": {"type": "integer"}
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
