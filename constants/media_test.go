package constants_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/casadona/deidpipe/constants"
)

func TestIsPlainText(t *testing.T) {
	assert.True(t, constants.IsPlainText("text/plain"))
	assert.True(t, constants.IsPlainText("text/markdown"))
	assert.True(t, constants.IsPlainText("text/plain; charset=utf-8"))
	assert.True(t, constants.IsPlainText("Text/Plain"))

	assert.False(t, constants.IsPlainText("text/html"))
	assert.False(t, constants.IsPlainText(constants.MediaTypePDF))
	assert.False(t, constants.IsPlainText(""))
}

func TestIsImage(t *testing.T) {
	assert.True(t, constants.IsImage("image/png"))
	assert.True(t, constants.IsImage("image/jpeg; quality=80"))
	assert.False(t, constants.IsImage("text/plain"))
	assert.False(t, constants.IsImage("imageography/x"))
}

func TestStagePredicates(t *testing.T) {
	assert.True(t, constants.StageExtractFailed.Failed())
	assert.True(t, constants.StageRedactFailed.Failed())
	assert.False(t, constants.StageDone.Failed())
	assert.False(t, constants.StageRegistered.Failed())

	assert.True(t, constants.StageRedacted.HasRedactedText())
	assert.True(t, constants.StageEnriching.HasRedactedText())
	assert.True(t, constants.StageDone.HasRedactedText())
	assert.False(t, constants.StageExtracted.HasRedactedText())
	assert.False(t, constants.StageRedactFailed.HasRedactedText())
}
