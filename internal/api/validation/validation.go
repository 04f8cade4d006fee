package validation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	apierrors "github.com/nkkko/simsub/internal/api/errors"
	"github.com/nkkko/simsub/pkg/proto"
)

// DecodeCall reads the call envelope from the request body. An empty body
// is a call without arguments.
func DecodeCall(w http.ResponseWriter, r *http.Request, maxBytes int64) (*proto.Call, error) {
	var call proto.Call
	body := http.MaxBytesReader(w, r.Body, maxBytes)

	if err := json.NewDecoder(body).Decode(&call); err != nil {
		if errors.Is(err, io.EOF) {
			return &call, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierrors.ValidationError("body_too_large",
				"Request body exceeds "+strconv.FormatInt(maxBytes, 10)+" bytes")
		}
		return nil, apierrors.ValidationError("invalid_json", "Invalid JSON format: "+err.Error())
	}
	return &call, nil
}

// Required validates that a string is not empty
func Required(field, value string) error {
	if value == "" {
		return apierrors.ValidationError("required_field_missing", field+" is required")
	}
	return nil
}

// NonEmpty validates that a list of ids is not empty
func NonEmpty(field string, ids []int32) error {
	if len(ids) == 0 {
		return apierrors.ValidationError("required_field_missing", field+" must not be empty")
	}
	return nil
}

// Min validates that a number is not less than min
func Min(field string, value, min int64) error {
	if value < min {
		return apierrors.ValidationError("min_value_not_met",
			field+" must be at least "+strconv.FormatInt(min, 10))
	}
	return nil
}

// First returns the first non-nil error
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
