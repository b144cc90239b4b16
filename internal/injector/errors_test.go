package injector

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPassError_MessageAndUnwrap(t *testing.T) {
	boom := errors.New("boom")
	err := &PassError{
		PassID: "p1",
		Failures: []*EntryError{
			{Key: "a", Token: "ssm:/a", Stage: StageFetch, Err: boom},
			{Key: "b", Token: "ssm:/b@x", Stage: StageTransform, Err: errors.New("bad")},
		},
	}

	assert.Equal(t,
		`pass p1: 2 entries failed: fetch "ssm:/a" in "a": boom; transform "ssm:/b@x" in "b": bad`,
		err.Error())
	assert.ErrorIs(t, err, boom)

	var ee *EntryError
	assert.True(t, errors.As(err, &ee))
	assert.Equal(t, "a", ee.Key)
}

func TestFailedKeysAndIsStage(t *testing.T) {
	pe := &PassError{PassID: "p", Failures: []*EntryError{
		{Key: "x", Stage: StageUpdate, Err: errors.New("e")},
	}}
	wrapped := fmt.Errorf("resolve: %w", pe)

	assert.Equal(t, []string{"x"}, FailedKeys(wrapped))
	assert.True(t, IsStage(wrapped, StageUpdate))
	assert.False(t, IsStage(wrapped, StageFetch))

	single := &EntryError{Key: "y", Stage: StageParse, Err: errors.New("e")}
	assert.Equal(t, []string{"y"}, FailedKeys(single))
	assert.True(t, IsStage(single, StageParse))

	assert.Nil(t, FailedKeys(errors.New("plain")))
	assert.False(t, IsStage(nil, StageParse))
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}
	first := gen.Generate()
	second := gen.Generate()

	assert.Len(t, first, 36)
	assert.NotEqual(t, first, second)
	assert.Equal(t, byte('7'), first[14], "version nibble")
}
