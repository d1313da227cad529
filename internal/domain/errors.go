package domain

import "errors"

var (
	// ErrAssetUnavailable signals that a source product image is missing or unreachable.
	ErrAssetUnavailable = errors.New("asset unavailable")
	// ErrModelInvocation signals an embedding or caption model failure after retries.
	ErrModelInvocation = errors.New("model invocation failed")
	// ErrIndexOperation signals a create/write/query failure against the vector index.
	ErrIndexOperation = errors.New("index operation failed")
	// ErrMalformedRequest signals a search request body that is neither valid JSON
	// nor base64-encoded JSON.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrImageDecode signals an image that could not be decoded or re-encoded.
	ErrImageDecode = errors.New("image decode failed")
)
