package api

import json "github.com/goccy/go-json"

// VersionResponse from GET /backend/api/v1/version
type VersionResponse struct {
	APIVersion *json.Number `json:"apiVersion"`
}
