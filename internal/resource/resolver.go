package resource

import "github.com/Brownie44l1/staticd/internal/response"

// Result is the outcome of resolving a request path.
type Result struct {
	Key   string
	Found bool
	Body  []byte
}

// Status returns 200 when the resource was found and 404 otherwise.
func (r Result) Status() response.StatusCode {
	if r.Found {
		return response.StatusOK
	}
	return response.StatusNotFound
}

type Resolver struct {
	src Lookuper
}

func NewResolver(src Lookuper) *Resolver {
	return &Resolver{src: src}
}

// Resolve never fails: a missing resource yields the 404.html page,
// or FallbackBody when that is missing as well.
func (r *Resolver) Resolve(path string) Result {
	key := Key(path)
	if body, ok := r.src.Lookup(key); ok {
		return Result{Key: key, Found: true, Body: body}
	}

	body, ok := r.src.Lookup(NotFoundKey)
	if !ok {
		body = []byte(FallbackBody)
	}
	return Result{Key: key, Body: body}
}
