package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()
	assert.NotEqual(t, gen.Generate(), gen.Generate())
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{SessionPrefix, StagingPrefix, RequestPrefix} {
		s := gen.GenerateWithPrefix(prefix)
		require.True(t, strings.HasPrefix(s, prefix+"_"), s)
		assert.True(t, HasPrefix(s, prefix))
		assert.False(t, HasPrefix(s, "other"))
	}
}

func TestTypedIDs(t *testing.T) {
	assert.True(t, HasPrefix(NewSessionID().String(), SessionPrefix))
	assert.True(t, HasPrefix(NewStagingID().String(), StagingPrefix))
	assert.True(t, HasPrefix(NewRequestID().String(), RequestPrefix))
}

func TestTimestamp(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	gen := NewGeneratorWithEntropy(ulid.Monotonic(strings.NewReader(strings.Repeat("x", 1024)), 0), func() time.Time { return fixed })

	ts, err := Timestamp(gen.GenerateWithPrefix(StagingPrefix))
	require.NoError(t, err)
	assert.True(t, fixed.Equal(ts))

	_, err = Timestamp("stage_not-a-ulid")
	assert.Error(t, err)
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	seen := sync.Map{}
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, dup := seen.LoadOrStore(gen.Generate(), true)
				assert.False(t, dup)
			}
		}()
	}
	wg.Wait()
}
