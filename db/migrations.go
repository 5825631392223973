// Package db carries the goose migrations so the server binary can apply
// them without a checkout.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
