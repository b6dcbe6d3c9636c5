package transcriber

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Run("should sort segments by start time", func(t *testing.T) {
		// Arrange
		input := []Segment{
			{Start: 4, End: 5, Text: "C"},
			{Start: 0, End: 1, Text: "A"},
			{Start: 2, End: 3, Text: "B"},
		}

		// Act
		out := Normalize(input)

		// Assert
		assert.Equal(t, []Segment{
			{Start: 0, End: 1, Text: "A"},
			{Start: 2, End: 3, Text: "B"},
			{Start: 4, End: 5, Text: "C"},
		}, out)
	})

	t.Run("should clamp an overlapping start to the previous end", func(t *testing.T) {
		out := Normalize([]Segment{
			{Start: 0, End: 2, Text: "A"},
			{Start: 1.5, End: 3, Text: "B"},
		})

		assert.Equal(t, []Segment{
			{Start: 0, End: 2, Text: "A"},
			{Start: 2, End: 3, Text: "B"},
		}, out)
	})

	t.Run("should drop segments fully covered by their predecessor", func(t *testing.T) {
		out := Normalize([]Segment{
			{Start: 0, End: 4, Text: "A"},
			{Start: 1, End: 3, Text: "B"},
			{Start: 3.5, End: 5, Text: "C"},
		})

		assert.Equal(t, []Segment{
			{Start: 0, End: 4, Text: "A"},
			{Start: 4, End: 5, Text: "C"},
		}, out)
	})

	t.Run("should drop degenerate input segments", func(t *testing.T) {
		out := Normalize([]Segment{
			{Start: 1, End: 1, Text: "EMPTY"},
			{Start: 3, End: 2, Text: "BACKWARDS"},
			{Start: 4, End: 5, Text: "OK"},
		})

		assert.Equal(t, []Segment{{Start: 4, End: 5, Text: "OK"}}, out)
	})

	t.Run("should keep equal starts in input order", func(t *testing.T) {
		out := Normalize([]Segment{
			{Start: 0, End: 1, Text: "FIRST"},
			{Start: 0, End: 2, Text: "SECOND"},
		})

		assert.Equal(t, []Segment{
			{Start: 0, End: 1, Text: "FIRST"},
			{Start: 1, End: 2, Text: "SECOND"},
		}, out)
	})

	t.Run("should not modify the input slice", func(t *testing.T) {
		input := []Segment{
			{Start: 2, End: 3, Text: "B"},
			{Start: 0, End: 2.5, Text: "A"},
		}
		snapshot := append([]Segment(nil), input...)

		Normalize(input)

		assert.Equal(t, snapshot, input)
	})

	t.Run("should return empty output for empty input", func(t *testing.T) {
		assert.Empty(t, Normalize(nil))
	})
}

func TestNormalize_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for trial := 0; trial < 200; trial++ {
		// Arrange
		n := rng.IntN(30)
		input := make([]Segment, n)
		for i := range input {
			start := rng.Float64() * 20
			input[i] = Segment{Start: start, End: start + rng.Float64()*3 - 0.5, Text: "W"}
		}

		// Act
		out := Normalize(input)

		// Assert
		for i, s := range out {
			assert.Less(t, s.Start, s.End, "trial %d segment %d", trial, i)
			if i > 0 {
				assert.GreaterOrEqual(t, s.Start, out[i-1].End, "trial %d segment %d", trial, i)
			}
		}
	}
}
