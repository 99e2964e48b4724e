package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateForRouting checks the fields every filter stage relies on.
func ValidateForRouting(msg *FilterMessage) error {
	if msg == nil {
		return &ValidationError{
			Field:   "message",
			Message: "filter message cannot be nil",
		}
	}

	if msg.MessageInfo.DestinationMdn == "" {
		return &ValidationError{
			Field:   "messageInfo.destinationMdn",
			Message: "destination MDN is required",
		}
	}

	if msg.ResultInfo.FilterStartTime <= 0 {
		return &ValidationError{
			Field:   "resultInfo.filterStartTime",
			Message: "filter start time must be positive",
		}
	}

	return nil
}
