package normalizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	n := New(nil)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"abbreviation", "j'ai un pb de courant stp", "j'ai un problème de courant s'il te plaît"},
		{"case insensitive", "PB avec la CLIM", "problème avec la climatisation"},
		{"whole words only", "pbx et robinetterie", "pbx et robinetterie"},
		{"punctuation kept", "ya une fuite, urgt!", "il y a une fuite, urgent!"},
		{"whitespace collapsed", "  fuite   au\tkwat  ", "fuite au quartier"},
		{"accented key", "élec en panne", "électricité en panne"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.input))
		})
	}
}

func TestNew_Overrides(t *testing.T) {
	n := New(map[string]string{"Bonam": "Bonamoussadi", "ya": ""})
	assert.Equal(t, "je suis à Bonamoussadi ya", n.Normalize("je suis à bonam ya"))
}

func TestLoadDictionary(t *testing.T) {
	dict, err := LoadDictionary("../../configs/slang.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Bonamoussadi", dict["bonam"])

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("\"a cote\": à côté\n"), 0o600))
	_, err = LoadDictionary(bad)
	assert.Error(t, err)
}
