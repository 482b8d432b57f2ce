package web

import "embed"

// Templates embeds HTML templates for public pages and documents.
//
//go:embed templates/pages/*.html templates/documents/*.html
var Templates embed.FS
