// Package tracecodec implements the reproduction-string codec: a
// 63-character alphabet with `.`/`:` escape prefixes for values that
// don't fit in one digit. Every integer in a flattened trace is at
// least -1, so values are shifted by one before encoding.
package tracecodec

import "fmt"

const alphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var charIndex = func() map[byte]int {
	m := make(map[byte]int, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = i
	}

	return m
}()

const base = len(alphabet)

// Encode serializes data (each entry >= -1, where -1 conventionally
// means "no value") into a reproduction string. Values are shifted by
// +1 so that -1 maps to the alphabet's first character, then emitted as
// one digit, or as a `.`-prefixed 2-digit or `:`-prefixed 3-digit
// little-endian group when they don't fit in one.
func Encode(data []int) (string, error) {
	out := make([]byte, 0, len(data))

	for _, raw := range data {
		if raw < -1 {
			return "", fmt.Errorf("tracecodec: value %d is below the -1 floor", raw)
		}

		i := raw + 1

		switch {
		case i < base:
			out = append(out, alphabet[i])
		case i < base*base:
			out = append(out, '.', alphabet[i%base], alphabet[i/base])
		case i < base*base*base:
			out = append(out, ':', alphabet[i%base])
			i /= base
			out = append(out, alphabet[i%base], alphabet[i/base])
		default:
			return "", fmt.Errorf("tracecodec: value %d too large to encode", raw)
		}
	}

	return string(out), nil
}

// Decode parses a reproduction string produced by Encode back into its
// integer sequence.
func Decode(encoded string) ([]int, error) {
	pos := 0

	find := func(c byte) (int, error) {
		idx, ok := charIndex[c]
		if !ok {
			return 0, fmt.Errorf("tracecodec: invalid character %q at offset %d", c, pos)
		}

		return idx, nil
	}

	readInt := func() (int, error) {
		if pos >= len(encoded) {
			return 0, fmt.Errorf("tracecodec: unexpected end of input")
		}

		c := encoded[pos]
		pos++

		switch c {
		case ':':
			if pos+3 > len(encoded) {
				return 0, fmt.Errorf("tracecodec: truncated 3-digit escape at offset %d", pos)
			}

			c1, c2, c3 := encoded[pos], encoded[pos+1], encoded[pos+2]
			pos += 3

			i1, err := find(c1)
			if err != nil {
				return 0, err
			}

			i2, err := find(c2)
			if err != nil {
				return 0, err
			}

			i3, err := find(c3)
			if err != nil {
				return 0, err
			}

			return (i3*base+i2)*base + i1 - 1, nil
		case '.':
			if pos+2 > len(encoded) {
				return 0, fmt.Errorf("tracecodec: truncated 2-digit escape at offset %d", pos)
			}

			c1, c2 := encoded[pos], encoded[pos+1]
			pos += 2

			i1, err := find(c1)
			if err != nil {
				return 0, err
			}

			i2, err := find(c2)
			if err != nil {
				return 0, err
			}

			return i2*base + i1 - 1, nil
		default:
			i, err := find(c)
			if err != nil {
				return 0, err
			}

			return i - 1, nil
		}
	}

	var out []int

	for pos < len(encoded) {
		v, err := readInt()
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}
