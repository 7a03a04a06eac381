package lang

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectEnglish(t *testing.T) {
	text := strings.Repeat("the quick brown fox and the lazy dog with the best of times ", 5)
	assert.Equal(t, "en", Detect(text))
}

func TestDetectSpanish(t *testing.T) {
	text := strings.Repeat("el rapido zorro y el perro con los mejores de los tiempos que ", 5)
	assert.Equal(t, "es", Detect(text))
}

func TestDetectEmptyTextDefaultsToEnglish(t *testing.T) {
	assert.Equal(t, "en", Detect(""))
}

func TestNormalizeCanonicalizesBCP47(t *testing.T) {
	assert.Equal(t, "en", Normalize("EN"))
	assert.Equal(t, "es", Normalize("es-ES"))
}

func TestNormalizeInvalidCodeFallsBackToEnglish(t *testing.T) {
	assert.Equal(t, "en", Normalize("???"))
}
