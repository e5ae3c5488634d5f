package mimetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForFilename(t *testing.T) {
	assert.Equal(t, "text/html", ForFilename("index.html"))
	assert.Equal(t, "text/plain", ForFilename("/a/b/foo.txt"))
	assert.Equal(t, OctetStream, ForFilename(""))
	assert.Equal(t, OctetStream, ForFilename("noext"))
	assert.Equal(t, OctetStream, ForFilename("dir/"))
	assert.Equal(t, OctetStream, ForFilename("weird.zzz"))
}

func TestShouldCompress(t *testing.T) {
	assert.True(t, ShouldCompress("text/html"))
	assert.True(t, ShouldCompress("image/svg+xml"))
	assert.False(t, ShouldCompress("image/png"))
	assert.False(t, ShouldCompress(OctetStream))
}
