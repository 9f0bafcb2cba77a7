package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrappedErrorsMatchSentinels(t *testing.T) {
	err := fmt.Errorf("video 3: %w", Newf(KindNotEnoughFieldPoints, "%d points", 2))

	require.ErrorIs(t, err, ErrNotEnoughFieldPoints)
	require.NotErrorIs(t, err, ErrFieldNotDetected)
	require.Equal(t, KindNotEnoughFieldPoints, KindOf(err))
	require.Equal(t, "video 3: 2 points", err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("broken pipe")
	err := Wrap(KindDetectorFailure, cause)

	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrDetectorFailure)
	require.Nil(t, Wrap(KindTimeout, nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrInvalidProjectState:             http.StatusConflict,
		ErrOutOfDiskSpace:                  http.StatusInsufficientStorage,
		ErrNotEnoughPlayersUniformExamples: http.StatusUnprocessableEntity,
		ErrTimeout:                         http.StatusServiceUnavailable,
		ErrNotFound:                        http.StatusNotFound,
		ErrInvalidInput:                    http.StatusBadRequest,
		errors.New("boom"):                 http.StatusInternalServerError,
	}
	for err, status := range cases {
		require.Equal(t, status, HTTPStatus(err), err.Error())
	}
	require.Equal(t, "TimeoutError", KindTimeout.String())
}
