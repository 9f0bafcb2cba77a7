package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

//Kind classifies a failure of the analysis core
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidFileFormat
	KindOutOfDiskSpace
	KindNotEnoughFieldPoints
	KindFieldNotDetected
	KindNotEnoughPlayersUniformExamples
	KindInvalidProjectState
	KindTimeout
	KindDetectorFailure
	KindNotFound
	KindInvalidInput
)

var kindNames = map[Kind]string{
	KindUnknown:                         "Unknown",
	KindInvalidFileFormat:               "InvalidFileFormat",
	KindOutOfDiskSpace:                  "OutOfDiskSpace",
	KindNotEnoughFieldPoints:            "NotEnoughFieldPoints",
	KindFieldNotDetected:                "FieldNotDetected",
	KindNotEnoughPlayersUniformExamples: "NotEnoughPlayersUniformExamples",
	KindInvalidProjectState:             "InvalidProjectState",
	KindTimeout:                         "TimeoutError",
	KindDetectorFailure:                 "DetectorFailure",
	KindNotFound:                        "NotFound",
	KindInvalidInput:                    "InvalidInput",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

//Is matches any *Error of the same kind, so wrapped failures compare equal to the sentinels below
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

//Wrap attaches kind to err, keeping err reachable through errors.Unwrap
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

var (
	ErrInvalidFileFormat               = New(KindInvalidFileFormat, "invalid file format")
	ErrOutOfDiskSpace                  = New(KindOutOfDiskSpace, "out of disk space")
	ErrNotEnoughFieldPoints            = New(KindNotEnoughFieldPoints, "not enough field points")
	ErrFieldNotDetected                = New(KindFieldNotDetected, "field not detected")
	ErrNotEnoughPlayersUniformExamples = New(KindNotEnoughPlayersUniformExamples, "not enough players uniform examples")
	ErrInvalidProjectState             = New(KindInvalidProjectState, "invalid project state")
	ErrTimeout                         = New(KindTimeout, "timeout")
	ErrDetectorFailure                 = New(KindDetectorFailure, "detector failure")
	ErrNotFound                        = New(KindNotFound, "not found")
	ErrInvalidInput                    = New(KindInvalidInput, "invalid input")
)

//KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

//HTTPStatus maps err to the status code the control surface answers with
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidFileFormat:
		return http.StatusUnsupportedMediaType
	case KindOutOfDiskSpace:
		return http.StatusInsufficientStorage
	case KindNotEnoughFieldPoints, KindFieldNotDetected, KindNotEnoughPlayersUniformExamples:
		return http.StatusUnprocessableEntity
	case KindInvalidProjectState:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
