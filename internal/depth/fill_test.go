package depth

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quollview/spreadscraper/internal/domain"
)

// levels builds a book side from [price, quantity] string pairs.
func levels(t *testing.T, pairs ...[2]string) []domain.PriceLevel {
	t.Helper()
	out := make([]domain.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		level, err := domain.ParseLevel([]string{p[0], p[1]})
		require.NoError(t, err)
		out = append(out, level)
	}
	return out
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFill_FullFill(t *testing.T) {
	calc := NewCalculator(DefaultPrecision)

	got, err := calc.Fill(levels(t, [2]string{"100", "2"}), dec("150"))
	require.NoError(t, err)

	assert.Equal(t, "100", got.WeightedPrice.String())
	assert.Equal(t, "150", got.AmountFilled.String())
	assert.Equal(t, "1.5", got.VolumeTraded.String())
}

func TestFill_PartialDepth(t *testing.T) {
	calc := NewCalculator(DefaultPrecision)

	// Total capacity is only 100; the shortfall is reported, not an error.
	got, err := calc.Fill(levels(t, [2]string{"100", "1"}), dec("150"))
	require.NoError(t, err)

	assert.Equal(t, "100", got.WeightedPrice.String())
	assert.Equal(t, "100", got.AmountFilled.String())
	assert.Equal(t, "1", got.VolumeTraded.String())
	assert.True(t, got.AmountFilled.LessThan(dec("150")))
}

func TestFill_SkipsInvalidLevels(t *testing.T) {
	calc := NewCalculator(DefaultPrecision)

	side := levels(t,
		[2]string{"100", "1"},
		[2]string{"50", "0"},    // zero quantity, skipped
		[2]string{"-10", "5"},   // negative price, skipped
		[2]string{"100", "2"},
	)

	got, err := calc.Fill(side, dec("250"))
	require.NoError(t, err)

	// The invalid levels contribute nothing and do not halt the walk.
	assert.Equal(t, "100", got.WeightedPrice.String())
	assert.Equal(t, "250", got.AmountFilled.String())
	assert.Equal(t, "2.5", got.VolumeTraded.String())
}

func TestFill_CrossesLevels(t *testing.T) {
	calc := NewCalculator(DefaultPrecision)

	side := levels(t,
		[2]string{"100", "1"},
		[2]string{"110", "1"},
	)

	// 100 from the first level, 55 from the second: base = 1 + 0.5.
	got, err := calc.Fill(side, dec("155"))
	require.NoError(t, err)

	assert.Equal(t, "155", got.AmountFilled.String())
	assert.Equal(t, "1.5", got.VolumeTraded.String())
	// 155 / 1.5 rounded to eight fractional digits.
	assert.Equal(t, "103.33333333", got.WeightedPrice.String())
}

func TestFill_NonPositiveTarget(t *testing.T) {
	calc := NewCalculator(DefaultPrecision)
	side := levels(t, [2]string{"100", "1"})

	for _, target := range []string{"0", "-5"} {
		_, err := calc.Fill(side, dec(target))
		assert.ErrorIs(t, err, domain.ErrInvalidTarget, "target %s", target)
	}
}

func TestFill_EmptyLevels(t *testing.T) {
	calc := NewCalculator(DefaultPrecision)

	got, err := calc.Fill(nil, dec("100"))
	require.NoError(t, err)

	assert.True(t, got.WeightedPrice.IsZero())
	assert.True(t, got.AmountFilled.IsZero())
	assert.True(t, got.VolumeTraded.IsZero())
}

func TestFill_AllLevelsInvalid(t *testing.T) {
	calc := NewCalculator(DefaultPrecision)

	side := levels(t, [2]string{"0", "3"}, [2]string{"100", "0"})

	got, err := calc.Fill(side, dec("100"))
	require.NoError(t, err)
	assert.True(t, got.WeightedPrice.IsZero())
	assert.True(t, got.VolumeTraded.IsZero())
}

func TestFill_Deterministic(t *testing.T) {
	calc := NewCalculator(DefaultPrecision)
	side := levels(t,
		[2]string{"7039.31", "2.57690088"},
		[2]string{"7040.04", "0.2491"},
		[2]string{"7043.3", "8.143697"},
	)

	first, err := calc.Fill(side, dec("25000"))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := calc.Fill(side, dec("25000"))
		require.NoError(t, err)
		assert.Equal(t, first.WeightedPrice.String(), again.WeightedPrice.String())
		assert.Equal(t, first.AmountFilled.String(), again.AmountFilled.String())
		assert.Equal(t, first.VolumeTraded.String(), again.VolumeTraded.String())
	}
}

func TestFill_ConfiguredPrecision(t *testing.T) {
	calc := NewCalculator(2)

	got, err := calc.Fill(levels(t, [2]string{"3", "1"}), dec("1"))
	require.NoError(t, err)

	assert.Equal(t, "0.33", got.VolumeTraded.String())
	assert.Equal(t, "1", got.AmountFilled.String())
	assert.Equal(t, "3", got.WeightedPrice.String())
}

func TestFill_InvariantPriceTimesVolume(t *testing.T) {
	calc := NewCalculator(DefaultPrecision)
	side := levels(t,
		[2]string{"7024.21", "2"},
		[2]string{"7024.2", "5.909882"},
		[2]string{"7023.88", "3.336"},
	)

	got, err := calc.Fill(side, dec("50000"))
	require.NoError(t, err)
	require.True(t, got.VolumeTraded.IsPositive())

	// weighted_price tracks amount/volume to within the rounding step.
	recomputed := got.AmountFilled.Div(got.VolumeTraded)
	diff := recomputed.Sub(got.WeightedPrice).Abs()
	assert.True(t, diff.LessThan(dec("0.0000001")), "diff %s", diff)
}

func TestParseLevel_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  []string
	}{
		{"short pair", []string{"100"}},
		{"bad price", []string{"abc", "1"}},
		{"bad quantity", []string{"100", "x1"}},
		{"empty price", []string{"", "1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.ParseLevel(tc.raw)
			assert.True(t, errors.Is(err, domain.ErrLevelParse))
		})
	}
}

func TestParseLevels_AbortsOnFirstBadPair(t *testing.T) {
	raw := [][]string{{"100", "1"}, {"oops", "2"}, {"101", "3"}}
	_, err := domain.ParseLevels(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLevelParse)
}
