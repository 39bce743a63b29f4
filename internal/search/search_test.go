package search

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var directory = []string{"MagnusCarlsen", "Hikaru", "FabianoCaruana", "GMHikaruFan", "alireza2003"}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		term string
		want []string
	}{
		{"case insensitive", "hikaru", []string{"Hikaru", "GMHikaruFan"}},
		{"trimmed", "  CARU ", []string{"FabianoCaruana"}},
		{"digits", "200", []string{"alireza2003"}},
		{"no match", "zzz", []string{}},
		{"substring across case", "ncarl", []string{"MagnusCarlsen"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filter(directory, tt.term))
		})
	}
}

func TestFilterEmptyTermReturnsInput(t *testing.T) {
	for _, term := range []string{"", "   ", "\t\n"} {
		got := Filter(directory, term)
		assert.Equal(t, directory, got)
		assert.Same(t, &directory[0], &got[0])
	}
}

func TestFilterIdempotent(t *testing.T) {
	for _, term := range []string{"a", "hik", "CAR", "", "x"} {
		once := Filter(directory, term)
		assert.Equal(t, once, Filter(once, term), term)
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	in := append([]string(nil), directory...)
	Filter(in, "a")
	assert.Equal(t, directory, in)
}

func TestDebouncerDeliversLatestValue(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []string
		done = make(chan struct{}, 4)
	)
	d := NewDebouncer(30*time.Millisecond, func(v string) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
		done <- struct{}{}
	})
	defer d.Stop()

	d.Push("h")
	d.Push("hi")
	d.Push("hik")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounced value never delivered")
	}

	// nothing else should arrive
	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "hik", got[0])
}

func TestDebouncerStopDropsPending(t *testing.T) {
	fired := make(chan string, 1)
	d := NewDebouncer(20*time.Millisecond, func(v string) { fired <- v })

	d.Push("x")
	d.Stop()
	d.Push("y")

	select {
	case v := <-fired:
		t.Fatalf("unexpected delivery %q", v)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestNewDebouncerDefaultQuietPeriod(t *testing.T) {
	d := NewDebouncer(0, func(string) {})
	assert.Equal(t, DefaultQuietPeriod, d.quiet)
}

func TestDebouncerDropsSupersededTimer(t *testing.T) {
	var got []string
	d := NewDebouncer(time.Hour, func(v string) { got = append(got, v) })
	defer d.Stop()

	d.Push("h")
	d.Push("hi")

	// a timer for "h" that fired before the second push stopped it
	d.fire(1, "h")
	assert.Empty(t, got)

	d.fire(2, "hi")
	assert.Equal(t, []string{"hi"}, got)
}
