package criteria

import (
	"net/url"
	"strconv"
)

// Request is a finalized set of screening criteria.
// It is immutable; Form returns a fresh copy for every page.
type Request struct {
	form      url.Values
	finalized bool
}

// Finalized reports whether r was produced by Builder.Build.
// A zero Request carries no validated criteria and must not be dispatched.
func (r *Request) Finalized() bool {
	return r != nil && r.finalized
}

// Form returns the request body for the given page, with the page cursor
// attached under PageField. The Request itself is not modified.
func (r *Request) Form(page int) url.Values {
	form := make(url.Values, len(r.form)+1)
	for key, values := range r.form {
		form[key] = append([]string(nil), values...)
	}
	form.Set(PageField, strconv.Itoa(page))
	return form
}

// Encode returns the criteria in URL-encoded form, without a page cursor.
func (r *Request) Encode() string {
	return r.form.Encode()
}
