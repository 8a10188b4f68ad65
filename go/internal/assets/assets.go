// Package assets holds the database schema and seed data.
package assets

import _ "embed"

//go:embed schema.sql
var Schema string

//go:embed seed.json
var Seed []byte
