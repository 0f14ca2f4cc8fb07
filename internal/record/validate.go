package record

import "fmt"

// Policy lists the fields a record must carry and the fields whose values
// must not repeat across a collection.
type Policy struct {
	Required []string `json:"required,omitempty"`
	Unique   []string `json:"unique,omitempty"`
}

// ValidationError describes the first policy violation found on a record.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate checks r against p. peers is the full collection; a peer with the
// same identifier as r is skipped, so a record never collides with itself.
//
// Required fields are checked first and in order; the first missing one is
// reported and the uniqueness pass does not run.
func Validate(r Record, peers []Record, p Policy) error {
	for _, field := range p.Required {
		if !HasValue(r[field]) {
			return &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("'%s' is required", field),
			}
		}
	}

	id := r.ID()
	for _, field := range p.Unique {
		value, ok := r[field]
		if !ok || value == nil {
			continue
		}
		for _, peer := range peers {
			if peer.ID() == id {
				continue
			}
			if strictEqual(peer[field], value) {
				return &ValidationError{
					Field:   field,
					Message: fmt.Sprintf("%s '%v' already exists", field, value),
				}
			}
		}
	}
	return nil
}
