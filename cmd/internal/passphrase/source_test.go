package passphrase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func scripted(answers ...string) func(string) (string, error) {
	return func(string) (string, error) {
		if len(answers) == 0 {
			return "", errors.New("no more answers")
		}
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
}

func TestGetPrefersEnvironment(t *testing.T) {
	t.Setenv("VESTAKE_TEST_PASS", "from-env")
	src := NewSource("VESTAKE_TEST_PASS")
	src.prompt = scripted("from-prompt")

	value, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, "from-env", value)
}

func TestGetRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("VESTAKE_TEST_PASS", "  ")
	_, err := NewSource("VESTAKE_TEST_PASS").Get()
	require.ErrorContains(t, err, "set but empty")
}

func TestGetCachesPromptedValue(t *testing.T) {
	src := NewSource("")
	src.prompt = scripted("hunter2")

	first, err := src.Get()
	require.NoError(t, err)
	second, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestGetNamesEnvVarWithoutTerminal(t *testing.T) {
	src := NewSource("VESTAKE_TEST_UNSET")
	src.prompt = func(string) (string, error) { return "", ErrNoTerminal }

	_, err := src.Get()
	require.ErrorIs(t, err, ErrNoTerminal)
	require.ErrorContains(t, err, "VESTAKE_TEST_UNSET")
}

func TestNewPassphraseRequiresMatch(t *testing.T) {
	src := NewSource("")
	src.prompt = scripted("one", "two")
	_, err := src.NewPassphrase()
	require.ErrorContains(t, err, "do not match")

	src.prompt = scripted("same", "same")
	value, err := src.NewPassphrase()
	require.NoError(t, err)
	require.Equal(t, "same", value)
}
