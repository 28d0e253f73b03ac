package rides

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/ride-pool/internal/models"
)

// ValidationError lists every field that failed, in the order found.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string { return strings.Join(e.Fields, ", ") }

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("lonlat", func(fl validator.FieldLevel) bool {
		c, ok := fl.Field().Interface().(models.Coordinates)
		return ok && c.Valid()
	})
	return v
}

// validateRide checks the stored shape. When the caller sets the seat count
// (create, or an update that patches it) at least one seat must be offered.
func (s *Service) validateRide(r *models.Ride, seatsSet bool) error {
	var fields []string
	if err := s.validate.Struct(r); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return err
		}
		for _, fe := range ves {
			fields = append(fields, fieldMessage(fe))
		}
	}
	if seatsSet && r.AvailableSeats < 1 {
		fields = append(fields, "availableSeats must be at least 1")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	// drop the root struct name
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "lonlat":
		return field + " must be a [longitude, latitude] pair"
	default:
		return field + " is invalid"
	}
}
