package dispatch

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMissingAttribute is returned by Bind when a required attribute is absent
var ErrMissingAttribute = errors.New("missing required attribute")

var validate = validator.New()

// Bind copies request attributes into the string fields of dst (a pointer
// to struct) using their `attr` tags, then validates dst with its
// `validate` tags.
//
//	type markParams struct {
//	    StudentID string `attr:"student-id" validate:"required"`
//	}
func Bind(req ActionRequest, dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bind target must be a pointer to struct, got %T", dst)
	}

	v = v.Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Tag.Get("attr")
		if name == "" || field.Type.Kind() != reflect.String {
			continue
		}
		if val, ok := req.Attributes[name]; ok {
			v.Field(i).SetString(val)
		}
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				if f, ok := t.FieldByName(fe.StructField()); ok {
					missing = append(missing, f.Tag.Get("attr"))
				}
			}
			return fmt.Errorf("%w: %s on %s", ErrMissingAttribute, strings.Join(missing, ", "), req.ActionID)
		}
		return err
	}
	return nil
}
