package server

import (
	"fmt"
	"strings"

	apperrors "jobtrack-commands/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

const commandSchemaJSON = `{
	"type": "object",
	"required": ["channel", "transcript", "requestId"],
	"properties": {
		"channel": {
			"type": "string",
			"enum": ["voice", "text"]
		},
		"transcript": {
			"type": "string",
			"minLength": 1,
			"maxLength": 2000
		},
		"requestId": {
			"type": "string",
			"minLength": 1,
			"maxLength": 128
		},
		"clarificationId": {
			"type": "string"
		},
		"choice": {
			"type": "string"
		},
		"stage": {
			"type": "string"
		}
	},
	"additionalProperties": false
}`

var commandSchema = gojsonschema.NewStringLoader(commandSchemaJSON)

// validateCommandBody checks the raw request body against the command schema
// before it is decoded. Schema failures are client errors, never 500s.
func validateCommandBody(body []byte) error {
	result, err := gojsonschema.Validate(commandSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperrors.NewValidationFailedError(fmt.Sprintf("malformed request body: %v", err))
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return apperrors.NewValidationFailedError(strings.Join(errs, "; "))
	}
	return nil
}
