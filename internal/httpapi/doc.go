// Package httpapi exposes the engine over HTTP/JSON with a chi router. Every
// handler is a thin adapter: decode, call one engine operation, encode. Errors
// are rendered as {"error": "<wire code>"} by the middleware package.
package httpapi
