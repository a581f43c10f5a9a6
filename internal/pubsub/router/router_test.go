package router

import (
	"errors"
	"testing"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	assert.True(t, shouldRetry(errors.New("connection reset")))
	assert.True(t, shouldRetry(ierr.NewError("db down").Mark(ierr.ErrDatabase)))
	assert.False(t, shouldRetry(ierr.NewError("missing").Mark(ierr.ErrNotFound)))
	assert.False(t, shouldRetry(ierr.NewError("bad").Mark(ierr.ErrValidation)))
}
