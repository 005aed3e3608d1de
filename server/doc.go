// Package server exposes the answer pipeline over HTTP.
//
// POST /api/ask (alias /api/vectorRetriever) accepts
//
//	{"query": "...", "chatHistory": [{"role": "human", "content": "..."}]}
//
// and streams the answer as plain text, flushing each fragment as soon as it
// is generated. Failures before the first fragment are reported with a JSON
// error body and a status code. A failure after streaming began cannot change
// the status, so it is reported in the X-Stream-Status and X-Stream-Error
// trailers instead.
package server
