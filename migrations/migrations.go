// Package migrations embeds the analyses schema
package migrations

import "embed"

// FS holds the ordered *.sql migrations
//
//go:embed *.sql
var FS embed.FS
