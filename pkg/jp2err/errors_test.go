package jp2err

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors_IsAndAs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		text     string
	}{
		{
			name:     "truncated",
			err:      Truncated(40, 14, 6),
			sentinel: ErrTruncated,
			text:     "truncated input: wanted 14 bytes at offset 40, only 6 available",
		},
		{
			name:     "malformed",
			err:      Malformed("ihdr", 40, "length %d", 9),
			sentinel: ErrMalformedBox,
			text:     `malformed box: "ihdr" @ 40: length 9`,
		},
		{
			name:     "unrecognized",
			err:      Unrecognized("progression order", 7),
			sentinel: ErrUnrecognizedEnum,
			text:     "unrecognized enum value: progression order unrecognized (raw value 7)",
		},
		{
			name:     "invalid",
			err:      Invalid("brand %q", "mjp2"),
			sentinel: ErrValidation,
			text:     `validation failed: brand "mjp2"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("parsing: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.text, tt.err.Error())
			assert.False(t, IsFatal(wrapped))
		})
	}

	var tr *TruncatedInputError
	assert.True(t, errors.As(fmt.Errorf("x: %w", Truncated(1, 2, 0)), &tr))
	assert.Equal(t, int64(2), tr.Want)
}

func TestIsFatal(t *testing.T) {
	err := fmt.Errorf("open: %w", Fatal("the second box must be ftyp"))
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, IsFatal(errors.New("other")))
	assert.False(t, IsFatal(nil))
}
