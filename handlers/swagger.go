package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers the OpenAPI endpoints for the chunkvault API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRoutes) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>chunkvault API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "chunkvault", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Error": { "type": "object", "properties": { "error": {"type":"string"}, "message": {"type":"string"} } },
      "ChunkDelta": { "type": "object", "properties": {
        "documentId": {"type":"string"}, "chunkId": {"type":"string"}, "chunkIndex": {"type":"integer"},
        "encryptedBlob": {"type":"string","format":"byte"}, "blobUrl": {"type":"string"},
        "version": {"type":"integer","format":"int64"}, "isDeleted": {"type":"boolean"}, "createdBy": {"type":"string"} } }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/api/v1/me": {
      "get": { "summary": "Caller profile", "responses": { "200": { "description": "user" }, "404": { "description": "not registered" } } },
      "put": { "summary": "Register caller and public key", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"publicKey":{"type":"string"}}}}}}, "responses": { "200": { "description": "user" } } }
    },
    "/api/teams": {
      "get": { "summary": "List caller's teams", "responses": { "200": { "description": "teams" } } },
      "post": { "summary": "Create team", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"},"description":{"type":"string"},"encryptedTeamKey":{"type":"string"}}}}}}, "responses": { "201": { "description": "team" } } }
    },
    "/api/teams/{teamId}": {
      "get": { "summary": "Get team", "responses": { "200": { "description": "team" }, "403": { "description": "not a member" } } },
      "delete": { "summary": "Delete team (owner only)", "responses": { "200": { "description": "deleted" }, "403": { "description": "not owner" } } }
    },
    "/api/teams/{teamId}/members": {
      "get": { "summary": "List members", "responses": { "200": { "description": "members" } } },
      "post": { "summary": "Invite member", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"userId":{"type":"string"},"email":{"type":"string"},"role":{"type":"string","enum":["ADMIN","MEMBER"]},"encryptedTeamKey":{"type":"string"}}}}}}, "responses": { "201": { "description": "member" }, "409": { "description": "already a member" } } }
    },
    "/api/teams/{teamId}/members/{userId}": {
      "put": { "summary": "Change role", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"role":{"type":"string"}}}}}}, "responses": { "200": { "description": "updated" } } },
      "delete": { "summary": "Kick member", "responses": { "200": { "description": "remaining members and edge nodes; key rotation required" } } }
    },
    "/api/teams/{teamId}/members/rotate-keys": {
      "post": { "summary": "Replace wrapped team keys (all or nothing)", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"memberKeys":{"type":"array","items":{"type":"object"}},"edgeNodeKeys":{"type":"array","items":{"type":"object"}}}}}}}, "responses": { "200": { "description": "counts" } } }
    },
    "/api/teams/{teamId}/documents": {
      "get": { "summary": "List documents", "responses": { "200": { "description": "documents" } } }
    },
    "/api/teams/{teamId}/documents/{documentId}": {
      "delete": { "summary": "Delete document (admin)", "responses": { "200": { "description": "tombstone version" } } }
    },
    "/api/teams/{teamId}/documents/reencrypt-keys": {
      "post": { "summary": "Replace wrapped document keys", "responses": { "200": { "description": "updated count" } } }
    },
    "/api/documents/{teamId}/chunks": {
      "post": { "summary": "Upload chunk batch (member only)", "responses": { "200": { "description": "document id, version and chunk refs" }, "403": { "description": "admins cannot upload" }, "409": { "description": "version conflict" }, "429": { "description": "rate limited" } } }
    },
    "/api/documents/{documentId}/chunks": {
      "get": { "summary": "List live chunks", "responses": { "200": { "description": "chunks", "content": { "application/json": { "schema": {"type":"array","items":{"$ref":"#/components/schemas/ChunkDelta"}}}} } } }
    },
    "/api/documents/{documentId}/chunks/{chunkIndex}": {
      "delete": { "summary": "Tombstone one chunk (admin)", "responses": { "200": { "description": "version" } } }
    },
    "/api/documents/{documentId}/chunks/sync": {
      "get": { "summary": "Document delta feed", "parameters": [ {"name":"lastVersion","in":"query","schema":{"type":"integer"}} ], "responses": { "200": { "description": "deltas", "content": { "application/json": { "schema": {"type":"array","items":{"$ref":"#/components/schemas/ChunkDelta"}}}} } } }
    },
    "/api/sync/chunks": {
      "get": { "summary": "Team delta feed", "parameters": [ {"name":"teamId","in":"query","required":true,"schema":{"type":"string"}}, {"name":"lastVersion","in":"query","schema":{"type":"integer"}} ], "responses": { "200": { "description": "deltas" } } }
    },
    "/api/sync/documents": {
      "get": { "summary": "Document metadata feed", "parameters": [ {"name":"teamId","in":"query","required":true,"schema":{"type":"string"}}, {"name":"lastSyncVersion","in":"query","schema":{"type":"integer"}} ], "responses": { "200": { "description": "document metadata" } } }
    },
    "/api/edge-nodes/register": {
      "post": { "summary": "Register edge node (admin)", "responses": { "201": { "description": "edge node" }, "409": { "description": "serial taken" } } }
    },
    "/api/edge-nodes/token": {
      "post": { "summary": "Exchange edge api token for a bearer token", "security": [], "responses": { "200": { "description": "access token" }, "401": { "description": "invalid credentials" } } }
    },
    "/api/edge-nodes/{nodeId}/team-key": {
      "get": { "summary": "Wrapped team key for an edge node", "responses": { "200": { "description": "key" }, "409": { "description": "no key set" } } }
    },
    "/api/edge-nodes/{nodeId}": {
      "delete": { "summary": "Remove edge node (admin)", "responses": { "200": { "description": "deleted" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "security": [], "responses": { "200": { "description": "metrics" } } } }
  }
}`
