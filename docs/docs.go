// Package docs registers the OpenAPI document served at /swagger.
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
        "/users/{id}/progress": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Progress"],
                "summary": "Progress card",
                "operationId": "getProgress",
                "parameters": [
                    {"type": "string", "description": "Platform user ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ProgressView"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/users/{id}/activity": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Progress"],
                "summary": "Activity feed",
                "operationId": "listActivity",
                "parameters": [
                    {"type": "string", "description": "Platform user ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListActivityResponse"}, "headers": {"ETag": {"type": "string", "description": "Weak ETag for current result"}}},
                    "304": {"description": "Not Modified"}
                }
            }
        },
        "/leaderboard": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Progress"],
                "summary": "Leaderboard",
                "operationId": "leaderboard",
                "parameters": [
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 10, "description": "Number of users", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.LeaderboardResponse"}}
                }
            }
        },
        "/users/{id}/awards": {
            "post": {
                "description": "Runs the award pipeline (guard, daily caps, multipliers, level-up). Denials return 200 with denied=true and a reason.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Awards"],
                "summary": "Award XP for an activity event",
                "operationId": "postAward",
                "parameters": [
                    {"type": "string", "description": "Platform user ID", "name": "id", "in": "path", "required": true},
                    {"description": "Activity event", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AwardEventRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.AwardResult"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/users/{id}/daily": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Awards"],
                "summary": "Daily check-in",
                "operationId": "claimDaily",
                "parameters": [
                    {"type": "string", "description": "Platform user ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.DailyResponse"}}
                }
            }
        },
        "/voice/state": {
            "post": {
                "consumes": ["application/json"],
                "tags": ["Voice"],
                "summary": "Apply a voice-state update",
                "operationId": "voiceState",
                "parameters": [
                    {"description": "Voice state", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.VoiceStateRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "503": {"description": "Tracker stopped", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/voice/sessions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Voice"],
                "summary": "List open voice sessions",
                "operationId": "voiceSessions",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/boosts/active": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Boosts"],
                "summary": "Running boost events",
                "operationId": "activeBoosts",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/boosts/{id}/standings": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Boosts"],
                "summary": "Event participation standings",
                "operationId": "boostStandings",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Boost event ID", "name": "id", "in": "path", "required": true},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 10, "description": "Number of participants", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stream/levelups": {
            "get": {
                "tags": ["Stream"],
                "summary": "Live progression events (websocket)",
                "operationId": "levelUpStream",
                "parameters": [
                    {"type": "string", "default": "level_up", "description": "Event type", "name": "type", "in": "query"},
                    {"type": "string", "description": "Only events for this user", "name": "user_id", "in": "query"}
                ],
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        },
        "/admin/users/{id}/xp": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Grant XP (admin)",
                "operationId": "adminAwardXP",
                "parameters": [
                    {"type": "string", "description": "Platform user ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Idempotency key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Amount", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AdjustXPRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.AdjustmentResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/users/{id}/xp/remove": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Remove XP (admin)",
                "operationId": "adminRemoveXP",
                "parameters": [
                    {"type": "string", "description": "Platform user ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Idempotency key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Amount", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AdjustXPRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.AdjustmentResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/users/{id}/penalty/clear": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Lift an anti-exploit penalty (admin)",
                "operationId": "clearPenalty",
                "parameters": [
                    {"type": "string", "description": "Platform user ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/admin/boosts": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Schedule a boost event (admin)",
                "operationId": "createBoost",
                "parameters": [
                    {"description": "Boost event", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateBoostRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string"}
            }
        },
        "handlers.AwardEventRequest": {
            "type": "object",
            "required": ["source"],
            "properties": {
                "source": {"type": "string", "example": "message"},
                "content": {"type": "string", "maxLength": 4000},
                "is_boosted": {"type": "boolean"}
            }
        },
        "handlers.DailyResponse": {
            "type": "object",
            "properties": {
                "claimed": {"type": "boolean"},
                "reason": {"type": "string", "example": "already_claimed"},
                "result": {"type": "object"}
            }
        },
        "handlers.VoiceStateRequest": {
            "type": "object",
            "required": ["user_id"],
            "properties": {
                "user_id": {"type": "string"},
                "channel_id": {"type": "string"},
                "is_bot": {"type": "boolean"},
                "self_mute": {"type": "boolean"},
                "self_deaf": {"type": "boolean"}
            }
        },
        "handlers.AdjustXPRequest": {
            "type": "object",
            "required": ["amount"],
            "properties": {
                "amount": {"type": "integer", "example": 250},
                "note": {"type": "string", "maxLength": 200}
            }
        },
        "handlers.AdjustmentResponse": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "amount": {"type": "integer"},
                "total_xp": {"type": "integer"},
                "level": {"type": "integer"},
                "leveled_up": {"type": "boolean"},
                "activity_id": {"type": "string"}
            }
        },
        "handlers.CreateBoostRequest": {
            "type": "object",
            "required": ["name", "starts_at", "ends_at"],
            "properties": {
                "name": {"type": "string"},
                "xp_multiplier": {"type": "number"},
                "coins_multiplier": {"type": "number"},
                "daily_multiplier": {"type": "number"},
                "starts_at": {"type": "string", "format": "date-time"},
                "ends_at": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.ListActivityResponse": {
            "type": "object",
            "properties": {
                "activity": {"type": "array", "items": {"type": "object"}},
                "pagination": {"type": "object"}
            }
        },
        "handlers.LeaderboardResponse": {
            "type": "object",
            "properties": {
                "users": {"type": "array", "items": {"type": "object"}}
            }
        },
        "services.AwardResult": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "source": {"type": "string"},
                "denied": {"type": "boolean"},
                "reason": {"type": "string"},
                "suspicious": {"type": "boolean"},
                "base_amount": {"type": "integer"},
                "multiplier": {"type": "number"},
                "final_amount": {"type": "integer"},
                "total_xp": {"type": "integer"},
                "old_level": {"type": "integer"},
                "new_level": {"type": "integer"},
                "leveled_up": {"type": "boolean"},
                "coins_gained": {"type": "integer"},
                "activity_id": {"type": "string"}
            }
        },
        "services.ProgressView": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "level": {"type": "integer"},
                "total_xp": {"type": "integer"},
                "current_xp": {"type": "integer"},
                "next_level_xp": {"type": "integer"},
                "progress": {"type": "number"},
                "rank": {"type": "integer"},
                "coins": {"type": "integer"},
                "voice_minutes": {"type": "integer"},
                "streak": {"type": "integer"},
                "longest_streak": {"type": "integer"},
                "claimed_today": {"type": "boolean"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Progression Engine API",
	Description:      "XP awards, levels, daily check-ins, voice activity and boost events for a community platform.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
