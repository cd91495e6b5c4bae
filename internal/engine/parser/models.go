package parser

import (
	"jobtrack-commands/internal/engine/normalize"
	"jobtrack-commands/internal/models"
)

// ParsedCommand is the raw, untrusted parser output. Args is an untyped bag;
// nothing downstream reads it directly — decode into the tagged variants
// below first.
type ParsedCommand struct {
	Intent string                 `json:"intent"`
	Args   map[string]interface{} `json:"args"`
}

// MoveStageArgs carries a validated stage-move request.
type MoveStageArgs struct {
	Stage    models.Stage
	Company  string
	Position string
}

// CommentArgs carries a validated comment request.
type CommentArgs struct {
	Text     string
	Company  string
	Position string
}

// CreateArgs carries a validated create request.
type CreateArgs struct {
	Title    string
	Company  string
	Location string
	Stage    models.Stage
}

// UpdateArgs carries a validated field-update request.
type UpdateArgs struct {
	Title    string
	Company  string
	Location string
}

// stringArg reads the first key that holds a non-empty string, ignoring any
// value the parser hallucinated with the wrong type.
func stringArg(args map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := args[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func companyArg(args map[string]interface{}) string {
	return stringArg(args, "company", "employer", "org")
}

func positionArg(args map[string]interface{}) string {
	return stringArg(args, "position", "title", "role")
}

// DecodeMoveStage extracts stage-move arguments. The stage is normalized
// through the keyword rules; an unrecognizable stage comes back empty and the
// engine falls back to the transcript.
func DecodeMoveStage(args map[string]interface{}) MoveStageArgs {
	out := MoveStageArgs{
		Company:  companyArg(args),
		Position: positionArg(args),
	}
	if raw := stringArg(args, "stage", "to", "status"); raw != "" {
		if stage, ok := normalize.Stage(raw); ok {
			out.Stage = stage
		}
	}
	return out
}

// DecodeComment extracts comment arguments.
func DecodeComment(args map[string]interface{}) CommentArgs {
	return CommentArgs{
		Text:     stringArg(args, "text", "note", "comment"),
		Company:  companyArg(args),
		Position: positionArg(args),
	}
}

// DecodeCreate extracts create arguments.
func DecodeCreate(args map[string]interface{}) CreateArgs {
	out := CreateArgs{
		Title:    positionArg(args),
		Company:  companyArg(args),
		Location: stringArg(args, "location", "city"),
	}
	if raw := stringArg(args, "stage", "status"); raw != "" {
		if stage, ok := normalize.Stage(raw); ok {
			out.Stage = stage
		}
	}
	return out
}

// DecodeUpdate extracts field-update arguments.
func DecodeUpdate(args map[string]interface{}) UpdateArgs {
	return UpdateArgs{
		Title:    positionArg(args),
		Company:  companyArg(args),
		Location: stringArg(args, "location", "city"),
	}
}
