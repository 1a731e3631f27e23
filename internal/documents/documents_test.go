package documents

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateLines(t *testing.T) {
	ordered := map[int64]int64{1: 50, 2: 10}
	consumed := map[int64]int64{1: 20}

	err := ValidateLines(ordered, consumed, []Line{{ItemID: 1, Quantity: 30}, {ItemID: 2, Quantity: 10}})
	require.NoError(t, err)

	err = ValidateLines(ordered, consumed, []Line{{ItemID: 1, Quantity: 31}})
	require.ErrorIs(t, err, ErrExceedsAvailable)

	err = ValidateLines(ordered, consumed, []Line{{ItemID: 3, Quantity: 1}})
	require.ErrorIs(t, err, ErrItemNotInSource)

	err = ValidateLines(ordered, consumed, []Line{{ItemID: 1, Quantity: 0}})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	err = ValidateLines(ordered, consumed, nil)
	require.ErrorIs(t, err, ErrEmptyLines)
}

func TestValidateLinesRepeatedItem(t *testing.T) {
	ordered := map[int64]int64{1: 50}

	// Two lines for the same item draw down one allowance.
	err := ValidateLines(ordered, map[int64]int64{}, []Line{{ItemID: 1, Quantity: 30}, {ItemID: 1, Quantity: 20}})
	require.NoError(t, err)

	err = ValidateLines(ordered, map[int64]int64{}, []Line{{ItemID: 1, Quantity: 30}, {ItemID: 1, Quantity: 21}})
	require.ErrorIs(t, err, ErrExceedsAvailable)
}

func TestValidateLinesAllBeforeAny(t *testing.T) {
	ordered := map[int64]int64{1: 50, 2: 10}

	// The offending line is the last one; the whole request still fails.
	err := ValidateLines(ordered, map[int64]int64{}, []Line{{ItemID: 1, Quantity: 10}, {ItemID: 2, Quantity: 11}})
	require.ErrorIs(t, err, ErrExceedsAvailable)
}

func TestRecomputeProgress(t *testing.T) {
	ordered := map[int64]int64{1: 50, 2: 10}

	require.Equal(t, ProgressNone, RecomputeProgress(ordered, map[int64]int64{}))
	require.Equal(t, ProgressPartial, RecomputeProgress(ordered, map[int64]int64{1: 50}))
	require.Equal(t, ProgressPartial, RecomputeProgress(ordered, map[int64]int64{1: 10, 2: 10}))
	require.Equal(t, ProgressComplete, RecomputeProgress(ordered, map[int64]int64{1: 50, 2: 10}))
	require.Equal(t, ProgressNone, RecomputeProgress(map[int64]int64{}, map[int64]int64{}))
}

func TestSumLinesAndAddConsumed(t *testing.T) {
	totals := SumLines([]Line{{ItemID: 1, Quantity: 5}, {ItemID: 1, Quantity: 3}, {ItemID: 2, Quantity: 1}})
	require.Equal(t, map[int64]int64{1: 8, 2: 1}, totals)

	consumed := map[int64]int64{1: 2}
	AddConsumed(consumed, []Line{{ItemID: 1, Quantity: 4}, {ItemID: 3, Quantity: 6}})
	require.Equal(t, map[int64]int64{1: 6, 3: 6}, consumed)
}
