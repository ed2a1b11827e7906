// Package server exposes the HTTP surface over chi: search, export uploads
// with asynchronous processing, conversation listings and a health probe.
// Identity comes from the X-User-ID header; requests without one run as a
// fixed default user.
package server
