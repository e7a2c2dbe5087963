package shm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		err  error
	}{
		{"plain", "seg1", "seg1", nil},
		{"leading slash stripped", "/seg1", "seg1", nil},
		{"empty", "", "", ErrNameInvalid},
		{"only slash", "/", "", ErrNameInvalid},
		{"interior slash", "a/b", "", ErrNameInvalid},
		{"embedded nul", "a\x00b", "", ErrNameInvalid},
		{"max minus one", strings.Repeat("x", MaxNameLen-1), strings.Repeat("x", MaxNameLen-1), nil},
		{"at limit", strings.Repeat("x", MaxNameLen), "", ErrNameTooLong},
		{"over limit", strings.Repeat("x", MaxNameLen+100), "", ErrNameTooLong},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := CleanName(c.in)
			if c.err != nil {
				assert.ErrorIs(t, err, c.err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, c.want, got)
		})
	}
}
