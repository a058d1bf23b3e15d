package service

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hle/errors"
)

type named interface {
	Service
	Drop()
}

func TestRef_ResolvesLazily(t *testing.T) {
	env := newTestEnv(0)
	ref := Ref[named]{Name: "target"}

	_, err := ref.Resolve(env)
	require.Error(t, err, "absent until registered")
	assert.False(t, ref.Resolved())

	target := &probe{}
	env.shared["target"] = target
	got, err := ref.Resolve(env)
	require.NoError(t, err)
	assert.Same(t, target, got)

	// later lookups do not go back to the environment
	delete(env.shared, "target")
	got, err = ref.Resolve(env)
	require.NoError(t, err)
	assert.Same(t, target, got)
}

func TestRef_TypeMismatch(t *testing.T) {
	type layerMaker interface {
		CreateLayer(uint64) (uint64, error)
	}
	env := newTestEnv(0)
	env.shared["target"] = &probe{}
	ref := Ref[layerMaker]{Name: "target"}

	_, err := ref.Resolve(env)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseDispatch, Kind: errors.KindTypeMismatch}))
}

func TestRef_Set(t *testing.T) {
	ref := Ref[named]{Name: "unused"}
	target := &probe{}
	ref.Set(target)
	got, err := ref.Resolve(nil)
	require.NoError(t, err)
	assert.Same(t, target, got)
}
