package tryit

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		l := NewLog()
		assert.Nil(t, l.Records())
		assert.Equal(t, 0, l.Len())
	})

	t.Run("append order", func(t *testing.T) {
		l := NewLog()
		l.Append(Record{ID: "a"})
		l.Append(Record{ID: "b"})

		records := l.Records()
		require.Len(t, records, 2)
		assert.Equal(t, "a", records[0].ID)
		assert.Equal(t, "b", records[1].ID)
	})

	t.Run("snapshots do not change", func(t *testing.T) {
		l := NewLog()
		l.Append(Record{ID: "a"})

		before := l.Records()
		l.Append(Record{ID: "b"})
		l.Clear()

		require.Len(t, before, 1)
		assert.Equal(t, "a", before[0].ID)
		assert.Equal(t, 0, l.Len())
	})

	t.Run("concurrent appends", func(t *testing.T) {
		l := NewLog()

		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				l.Append(Record{ID: strconv.Itoa(i)})
				_ = l.Records()
			}()
		}
		wg.Wait()

		assert.Equal(t, 50, l.Len())
	})
}

func TestLogs(t *testing.T) {
	var logs Logs

	a := logs.For("GET /a")
	assert.Same(t, a, logs.For("GET /a"))
	assert.NotSame(t, a, logs.For("GET /b"))

	a.Append(Record{ID: "1"})
	logs.For("GET /b").Append(Record{ID: "2"})

	logs.Clear("GET /a")
	assert.Equal(t, 0, logs.For("GET /a").Len())
	assert.Equal(t, 1, logs.For("GET /b").Len())
}

func TestRecordNetworkError(t *testing.T) {
	assert.True(t, Record{}.NetworkError())
	assert.False(t, Record{Status: 404}.NetworkError())
}
