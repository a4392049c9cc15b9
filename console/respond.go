package console

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vitalvas/apiconsole/muxhandlers"
)

// responseJSON encodes v and writes it with the given status. Encoding
// failures become a 500 problem.
func responseJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		muxhandlers.WriteProblem(w, r, http.StatusInternalServerError, muxhandlers.ProblemInternal, "encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

// bindJSON decodes exactly one JSON value from the request body into v.
// Unknown fields are rejected.
func bindJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected trailing data after JSON value")
	}

	return nil
}

// badRequest answers a request whose input could not be decoded. Bodies
// over the size limit get a 413.
func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		muxhandlers.WriteProblem(w, r, http.StatusRequestEntityTooLarge, muxhandlers.ProblemTooLarge, err.Error())
		return
	}

	muxhandlers.WriteProblem(w, r, http.StatusBadRequest, muxhandlers.ProblemValidation, err.Error())
}

func notFound(w http.ResponseWriter, r *http.Request, detail string) {
	muxhandlers.WriteProblem(w, r, http.StatusNotFound, muxhandlers.ProblemNotFound, detail)
}
