// internal/generation/requests.go
package generation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest is returned, before any persistence work, for requests
// that fail validation
var ErrInvalidRequest = errors.New("invalid request")

// MaxPromptBytes bounds chat messages and prompts
const MaxPromptBytes = 32 * 1024

// idPattern accepts opaque identifiers such as UUIDs or 24-hex object IDs
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxPromptBytes
	})
	_ = validate.RegisterValidation("id", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
}

// CheckID validates a project or message identifier
func CheckID(field, id string) error {
	if err := validate.Var(id, "required,id"); err != nil {
		return fmt.Errorf("%w: %s must be an identifier of letters, digits, '-' or '_'", ErrInvalidRequest, field)
	}
	return nil
}

// GenerationRequest identifies where a model reply is written
type GenerationRequest struct {
	ProjectID string `json:"projectId" validate:"required,id"`
	MessageID string `json:"messageId,omitempty" validate:"omitempty,id"`
}

// PromptRequest asks the model for a reply and processes it
type PromptRequest struct {
	ProjectID string `json:"projectId" validate:"required,id"`
	MessageID string `json:"messageId,omitempty" validate:"omitempty,id"`
	Prompt    string `json:"prompt" validate:"required,maxbytes"`
}

// ChatRequest is one message posted to a project's chat
type ChatRequest struct {
	ProjectID string `json:"projectId" validate:"required,id"`
	Sender    string `json:"sender" validate:"required,max=200"`
	Message   string `json:"message" validate:"required,maxbytes"`
}

func check(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidRequest, f.Field(), f.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
