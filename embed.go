package localchat

import "embed"

// TemplateFS contains the embedded HTML templates of the chat page, split into the layout, the page
// and the partials the send handler renders on their own.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS contains the script and stylesheet served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
