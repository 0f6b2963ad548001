package rotator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubetok/tubetok/rotator"
)

func TestNewRejectsEmptySet(t *testing.T) {
	r, err := rotator.New(nil, 0)
	assert.ErrorIs(t, err, rotator.ErrNoCredentials)
	assert.Nil(t, r)

	r, err = rotator.New([]string{}, 3)
	assert.ErrorIs(t, err, rotator.ErrNoCredentials)
	assert.Nil(t, r)
}

func TestNewWrapsStartIndex(t *testing.T) {
	creds := []string{"a", "b", "c"}

	r, err := rotator.New(creds, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Index())
	assert.Equal(t, "b", r.Current())

	r, err = rotator.New(creds, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Index())
}

func TestAdvanceVisitsEveryIndexOncePerRound(t *testing.T) {
	for k := 1; k <= 6; k++ {
		creds := make([]string, k)
		for i := range creds {
			creds[i] = string(rune('a' + i))
		}

		for start := 0; start < k; start++ {
			r, err := rotator.New(creds, start)
			require.NoError(t, err)

			seen := map[int]bool{start: true}
			for i := 0; i < k-1; i++ {
				r.Advance()
				assert.False(t, seen[r.Index()], "k=%d start=%d repeated index %d", k, start, r.Index())
				seen[r.Index()] = true
			}
			assert.Len(t, seen, k)

			// The k-th advance exhausts the round and resets to index 0.
			assert.Equal(t, creds[0], r.Advance())
			assert.Equal(t, 0, r.Index())
		}
	}
}

func TestAdvanceCycleRestartsIdentically(t *testing.T) {
	creds := []string{"t1", "t2", "t3", "t4"}
	r, err := rotator.New(creds, 2)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		r.Advance()
	}
	require.Equal(t, 0, r.Index())

	var first, second []int
	for i := 0; i < 4; i++ {
		r.Advance()
		first = append(first, r.Index())
	}
	for i := 0; i < 4; i++ {
		r.Advance()
		second = append(second, r.Index())
	}
	assert.Equal(t, []int{1, 2, 3, 0}, first)
	assert.Equal(t, first, second)
}

func TestCurrentAlwaysValid(t *testing.T) {
	r, err := rotator.New([]string{"only"}, 0)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		assert.Equal(t, "only", r.Advance())
		assert.Equal(t, "only", r.Current())
	}
}

func TestConcreteScenario(t *testing.T) {
	r, err := rotator.New([]string{"t1", "t2", "t3"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "t2", r.Current())
	assert.Equal(t, "t3", r.Advance())
	assert.Equal(t, "t1", r.Advance())
	assert.Equal(t, "t1", r.Current())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "short", rotator.Redact("short"))
	assert.Equal(t, "AIzaSyAB…", rotator.Redact("AIzaSyABCDEFGHIJ"))
}
