package canon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadProfile(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Profile
	}{
		{
			name: "Full",
			body: "weakness = false\nmax_relabel_rounds = 3\n",
			want: Profile{Weakness: false, MaxRelabelRounds: 3},
		},
		{
			name: "DefaultsForMissingKeys",
			body: "max_relabel_rounds = 2\n",
			want: Profile{Weakness: true, MaxRelabelRounds: 2},
		},
		{
			name: "Empty",
			body: "",
			want: DefaultProfile(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadProfile(writeProfile(t, tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadProfile_Errors(t *testing.T) {
	t.Run("UnknownKey", func(t *testing.T) {
		_, err := LoadProfile(writeProfile(t, "wekness = true\n"))
		require.Error(t, err)
	})
	t.Run("Malformed", func(t *testing.T) {
		_, err := LoadProfile(writeProfile(t, "weakness = = true\n"))
		require.Error(t, err)
	})
	t.Run("Missing", func(t *testing.T) {
		_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.toml"))
		require.Error(t, err)
	})
}

func TestCanon_StrongProfile(t *testing.T) {
	p := DefaultProfile()
	p.Weakness = false
	c := New(WithProfile(p))
	a := c.MustAdmit(map[string]any{"n": 1})
	b := c.MustAdmit(map[string]any{"n": 1})
	assert.True(t, sameValue(a, b), "strong profile must preserve canonicalization semantics")
}
