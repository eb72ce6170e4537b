// Package db provides the embedded schema for the PostgreSQL storage backend.
package db

import _ "embed"

// Schema contains the idempotent DDL for the kv and receipts tables.
//
//go:embed migrations/001_schema.sql
var Schema string
