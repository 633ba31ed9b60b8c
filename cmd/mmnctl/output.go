package main

import (
	"encoding/json"
	"fmt"
	"io"

	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

type response struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *responseError `json:"error,omitempty"`
}

type responseError struct {
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
	Details any            `json:"details,omitempty"`
}

func writeResult(w io.Writer, data any) error {
	return encode(w, response{Status: "ok", Data: data})
}

// writeError renders err the way operators see it. Uncoded errors come out as
// INTERNAL_ERROR with the raw message.
func writeError(w io.Writer, err error) {
	out := &responseError{Code: pkgerrors.CodeInternal, Message: err.Error()}
	if typed := pkgerrors.As(err); typed != nil {
		out.Code = typed.Code()
		out.Message = typed.Error()
		if pkgerrors.MetadataFor(typed.Code()).DetailsAllowed {
			out.Details = typed.Details()
		}
	}
	if encErr := encode(w, response{Status: "error", Error: out}); encErr != nil {
		fmt.Fprintln(w, err.Error())
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).ExitCode
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
