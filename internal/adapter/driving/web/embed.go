package web

import "embed"

// StaticFS holds the embedded front-end assets (index page, app JS, CSS).
//
//go:embed static/*
var StaticFS embed.FS
