package failures

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectorAddAndCount(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.Add("enrich", "a1", "DataProcessingError", "join failed", nil)
	c.Add("enrich", "", "DataProcessingError", "missing id", nil)

	require.Equal(t, 2, c.Count())
	records := c.Records()
	require.Equal(t, "a1", records[0].ItemID)
	require.Equal(t, "<unknown>", records[1].ItemID)
	require.Equal(t, map[string]int{"enrich": 2}, c.CountByStep())
}

func TestCollectorConcurrentAdd(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add("step", "item", "ValidationError", "bad", nil)
		}()
	}
	wg.Wait()

	require.Equal(t, 100, c.Count())
}
