// Package appfs embeds the files shipped with the binaries: SQL migrations, email & page templates
// and static assets.
package appfs

import "embed"

//go:embed migrations all:templates assets
var FS embed.FS
