// Package appfs embeds the files shipped with the binaries.
package appfs

import "embed"

//go:embed migrations templates i18n assets
var FS embed.FS
