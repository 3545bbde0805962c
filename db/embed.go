// Package db embeds the SQL schema applied on startup and by the CLIs.
package db

import _ "embed"

// Schema creates every table and index used by the service. It is
// idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
