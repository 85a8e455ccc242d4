package webassets

import "embed"

// Files contains the embedded admin console and login pages.
//
// Keep this broad enough so page updates are automatically packaged in binaries.
//
//go:embed *.html
var Files embed.FS

// Page file names.
const (
	AdminPage = "admin.html"
	LoginPage = "login.html"
)
