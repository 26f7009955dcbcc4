package tracecodec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcana-nexus/nexus/internal/tracecodec"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := [][]int{
		{},
		{-1},
		{0, 1, 2, 3},
		{-1, 0, 61, 62, 63, 64},
		{1000, 4000, 5000},
		{base2Boundary() - 1, base2Boundary(), base2Boundary() + 1},
		{63*63*63 - 2},
	}

	for _, data := range cases {
		encoded, err := tracecodec.Encode(data)
		require.NoError(t, err)

		decoded, err := tracecodec.Decode(encoded)
		require.NoError(t, err)

		if len(data) == 0 {
			require.Empty(t, decoded)
		} else {
			require.Equal(t, data, decoded)
		}
	}
}

func TestEncode_RejectsBelowFloor(t *testing.T) {
	_, err := tracecodec.Encode([]int{-2})
	require.Error(t, err)
}

func TestDecode_RejectsInvalidCharacter(t *testing.T) {
	_, err := tracecodec.Decode("!")
	require.Error(t, err)
}

func TestDecode_RejectsTruncatedEscape(t *testing.T) {
	_, err := tracecodec.Decode(".A")
	require.Error(t, err)

	_, err = tracecodec.Decode(":AB")
	require.Error(t, err)
}

func TestEncode_SingleDigitUsesFirstAlphabetCharForVoidSlot(t *testing.T) {
	encoded, err := tracecodec.Encode([]int{-1})
	require.NoError(t, err)
	require.Equal(t, "-", encoded)
}

func base2Boundary() int {
	return 63 * 63
}
