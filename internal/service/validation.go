package service

import (
	"errors"
	"fmt"
	"strings"

	"rentals/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs struct tag validation and folds failures into ErrInvalidInput.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// validateProperty checks tags plus the details union: the block matching Kind is
// set and the other one is not.
func validateProperty(p *models.Property) error {
	if err := validateStruct(p); err != nil {
		return err
	}
	switch p.Kind {
	case models.KindApartment:
		if p.Transient != nil {
			return fmt.Errorf("%w: apartment listing must not carry transient details", ErrInvalidInput)
		}
	case models.KindTransient:
		if p.Apartment != nil {
			return fmt.Errorf("%w: transient listing must not carry apartment details", ErrInvalidInput)
		}
	}
	return nil
}

func requireSession(sess *models.Session) error {
	if sess == nil || sess.UserID == 0 {
		return ErrUnauthenticated
	}
	return nil
}
