package muxhandlers

import (
	"encoding/json"
	"net/http"

	"github.com/moogar0880/problems"
)

// Problem types written by the middleware and the console API.
const (
	ProblemInternal   = "internal_error"
	ProblemValidation = "validation_error"
	ProblemNotFound   = "not_found"
	ProblemConflict   = "conflict"
	ProblemTooLarge   = "request_too_large"

	ProblemMethodNotAllowed = "method_not_allowed"
	ProblemUnsupportedMedia = "unsupported_media_type"
)

// WriteProblem writes an RFC 7807 problem document with the given status.
// The request path is used as the problem instance.
//
// Spec reference: https://www.rfc-editor.org/rfc/rfc7807
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, typ, detail string) {
	problem := problems.NewStatusProblem(status).
		WithInstance(r.URL.Path).
		WithType(typ)
	if detail != "" {
		problem = problem.WithDetail(detail)
	}

	w.Header().Set("Content-Type", problems.ProblemMediaType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(problem)
}
