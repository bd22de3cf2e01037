package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher(t *testing.T) {
	sha := NewHasher(SHA256)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sha.HashString(""))

	b3 := NewHasher(BLAKE3)
	assert.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", b3.HashString(""))

	streamed, err := b3.HashReader(strings.NewReader("bundle"))
	require.NoError(t, err)
	assert.Equal(t, b3.HashString("bundle"), streamed)
	assert.NotEqual(t, sha.HashString("bundle"), streamed)
}

func TestParseHashAlgorithm(t *testing.T) {
	alg, err := ParseHashAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, SHA256, alg)

	alg, err = ParseHashAlgorithm("blake3")
	require.NoError(t, err)
	assert.Equal(t, BLAKE3, alg)

	_, err = ParseHashAlgorithm("md5")
	assert.Error(t, err)
}

func TestCleanRelativePath(t *testing.T) {
	valid := map[string]string{
		"index.html":       "index.html",
		"js/app.js":        "js/app.js",
		"./css//site.css":  "css/site.css",
		"assets/img/a.png": "assets/img/a.png",
	}
	for in, want := range valid {
		got, err := CleanRelativePath(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "/etc/passwd", "../x", "a/../../b", "a\\b", "a\x00b", ".", "./"} {
		_, err := CleanRelativePath(in)
		assert.Error(t, err, in)
	}
}

func TestSizeValidator(t *testing.T) {
	v := NewSizeValidator(4)
	assert.NoError(t, v.ValidateSize([]byte("abcd")))
	assert.Error(t, v.ValidateSize([]byte("abcde")))
}
