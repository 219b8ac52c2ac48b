package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompter(t *testing.T) {
	t.Run("password from pipe", func(t *testing.T) {
		var prompts bytes.Buffer
		p := NewPrompter(strings.NewReader("s3cret pass\r\n"), &prompts)

		password, err := p.Password("Password: ")
		require.NoError(t, err)
		assert.Equal(t, "s3cret pass", password)
		assert.Equal(t, "Password: ", prompts.String())
	})

	t.Run("last line without newline", func(t *testing.T) {
		p := NewPrompter(strings.NewReader("tail"), &bytes.Buffer{})

		input, err := p.Input("> ")
		require.NoError(t, err)
		assert.Equal(t, "tail", input)

		_, err = p.Input("> ")
		assert.Error(t, err)
	})

	t.Run("confirm", func(t *testing.T) {
		tests := []struct {
			input      string
			defaultYes bool
			want       bool
		}{
			{"y\n", false, true},
			{"YES\n", false, true},
			{"no\n", true, false},
			{"\n", true, true},
			{"\n", false, false},
		}

		for _, tt := range tests {
			p := NewPrompter(strings.NewReader(tt.input), &bytes.Buffer{})
			got, err := p.Confirm("Continue?", tt.defaultYes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "input %q", tt.input)
		}
	})

	t.Run("password confirm mismatch", func(t *testing.T) {
		p := NewPrompter(strings.NewReader("one\ntwo\n"), &bytes.Buffer{})

		_, err := p.PasswordConfirm("Password: ")
		assert.ErrorContains(t, err, "do not match")
	})
}
