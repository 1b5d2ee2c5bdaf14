package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/store"
)

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := kgerr.New(
		kgerr.CodeConfigValidateInvalidValue,
		"unknown primary backend",
		kgerr.FieldBackend("mongo"),
	)

	require.Error(t, err)
	assert.Equal(t, kgerr.CodeConfigValidateInvalidValue, kgerr.CodeOf(err))
	assert.True(t, kgerr.IsInvalidInput(err))
	assert.Equal(t, "mongo", kgerr.FieldsOf(err)["backend"])
}

func TestWrapKeepsChain(t *testing.T) {
	err := kgerr.Wrap(store.ErrConflict, kgerr.CodeStoreConflict, "insert quad", kgerr.FieldTable("quads"))

	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.True(t, kgerr.HasCode(err, kgerr.CodeStoreConflict))
	assert.Contains(t, err.Error(), "insert quad")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, kgerr.Wrap(nil, kgerr.CodeStoreDatabaseFailure, "noop"))
	assert.NoError(t, kgerr.Wrapf(nil, kgerr.CodeStoreDatabaseFailure, "noop %d", 1))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, kgerr.Code(""), kgerr.CodeOf(stderrors.New("plain")))
	assert.Equal(t, kgerr.Code(""), kgerr.CodeOf(nil))
	assert.False(t, kgerr.HasCode(nil, kgerr.CodeStoreConflict))
}

func TestIsUnsupported(t *testing.T) {
	err := kgerr.Errorf(kgerr.CodeStoreSearchUnsupported, "no search backend: %w", store.ErrUnsupported)
	assert.True(t, kgerr.IsUnsupported(err))
	assert.ErrorIs(t, err, store.ErrUnsupported)
}
