package weberr

import "errors"

type fieldsError struct {
	error
	fields map[string]any
}

func (e *fieldsError) Unwrap() error { return e.error }

// Fields merges the log fields of every WithFields layer in err's chain. The
// outermost layer wins on a key collision.
func Fields(err error) (map[string]any, bool) {
	var out map[string]any

	for err != nil {
		var fe *fieldsError
		if !errors.As(err, &fe) {
			break
		}
		if out == nil {
			out = make(map[string]any, len(fe.fields))
		}
		for k, v := range fe.fields {
			if _, set := out[k]; !set {
				out[k] = v
			}
		}
		err = fe.error
	}

	return out, out != nil
}
