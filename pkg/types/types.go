// Package types defines the public wire types of the AMS API.
//
// These types mirror the schemas published in the API's OpenAPI document
// (see api/ams-openapi.yaml). They are imported by the client SDK, the console
// and tests.
//
// Conventions:
//   - Read types (Course, Location, Rank) carry the server-assigned ID.
//   - Request types never carry an ID; updates address the resource by path.
//   - JSON tags use camelCase to match the OpenAPI schema.
//   - Validation is NOT performed in this package; forms validate drafts.
package types

// Course is a training course ("Lehrgang").
type Course struct {
	// ID is the server-assigned opaque identifier.
	ID string `json:"id"`

	// Name is the human-readable label (e.g. "Truppmann Modul 1").
	Name string `json:"name"`

	// Abbreviation is the short code (e.g. "TM-M1").
	Abbreviation string `json:"abbreviation"`
}

// CreateCourseRequest is the request body for creating a course.
type CreateCourseRequest struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// UpdateCourseRequest is the request body for updating a course.
type UpdateCourseRequest struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// Rank is a service rank ("Dienstgrad").
type Rank struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// CreateRankRequest is the request body for creating a rank.
type CreateRankRequest struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// UpdateRankRequest is the request body for updating a rank.
type UpdateRankRequest struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// Address is the postal address of a location.
type Address struct {
	Street      string `json:"street"`
	HouseNumber int    `json:"houseNumber"`
	ZipCode     int    `json:"zipCode"`
	City        string `json:"city"`
	Country     string `json:"country"`
}

// Location is a training site ("Standort").
type Location struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Address Address `json:"address"`
}

// CreateLocationRequest is the request body for creating a location.
type CreateLocationRequest struct {
	Name    string  `json:"name"`
	Address Address `json:"address"`
}

// UpdateLocationRequest is the request body for updating a location.
type UpdateLocationRequest struct {
	Name    string  `json:"name"`
	Address Address `json:"address"`
}

// ===========================================================================
// RFC 9457 Problem Details: standard error response type.
// ===========================================================================

// ProblemDetail represents an RFC 9457 Problem Details response.
type ProblemDetail struct {
	// Type is a URI reference identifying the problem type.
	// Default: "about:blank"
	Type string `json:"type"`

	// Title is a short, human-readable summary.
	Title string `json:"title"`

	// Status is the HTTP status code.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`

	// Errors is an optional list of field-level validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single field-level validation failure.
type ValidationError struct {
	// Field is the JSON field path (e.g., "name", "address.zipCode").
	Field string `json:"field"`

	// Message describes what is wrong with the field value.
	Message string `json:"message"`
}
