package ocr

import (
	"errors"
	"fmt"
)

// ErrEmptyImage is wrapped in a RecognitionError when the caller hands over no bytes.
var ErrEmptyImage = errors.New("empty image")

// RecognitionError reports that the text-recognition engine itself failed:
// the image could not be decoded, the engine errored, or the deadline passed.
// It is never produced for an image that simply contains no text.
type RecognitionError struct {
	Engine string
	Err    error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("%s recognition failed: %v", e.Engine, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// IsRecognitionError reports whether err carries a *RecognitionError.
func IsRecognitionError(err error) bool {
	var re *RecognitionError
	return errors.As(err, &re)
}

func recognitionErr(engine string, err error) error {
	return &RecognitionError{Engine: engine, Err: err}
}
