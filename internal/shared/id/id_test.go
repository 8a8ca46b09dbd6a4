package id

import (
	"strings"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	assert.NotEqual(t, id1.String(), id2.String())
	assert.Len(t, id1.String(), 26)
}

func TestTypedIDs(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{name: "session", id: NewSessionID().String(), prefix: SessionPrefix},
		{name: "request", id: NewRequestID().String(), prefix: RequestPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, strings.HasPrefix(tt.id, tt.prefix+"_"), tt.id)
			_, err := ulid.Parse(strings.TrimPrefix(tt.id, tt.prefix+"_"))
			assert.NoError(t, err)
		})
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const workers = 8
	const perWorker = 200

	var (
		mu   sync.Mutex
		seen = make(map[SessionID]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				sid := NewSessionID()
				mu.Lock()
				seen[sid] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}
