package shortener

// Record is a persisted slug to URL mapping. Once stored it is never changed.
type Record struct {
	Slug string
	URL  string
}

// Result is the outcome of a successful Resolve.
type Result struct {
	Slug string
	URL  string
	// Existed is true when the mapping was already stored and nothing was written.
	Existed bool
}
