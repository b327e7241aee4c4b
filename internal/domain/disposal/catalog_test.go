package disposal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuidelines(t *testing.T) {
	got := Guidelines()
	require.Len(t, got, 4)

	categories := make([]string, 0, len(got))
	for _, g := range got {
		categories = append(categories, g.Category)
		assert.NotEmpty(t, g.Steps)
	}
	assert.Equal(t, []string{"Pills & Tablets", "Liquids", "Inhalers", "Sharps"}, categories)
}

func TestGuidelines_ReturnsCopies(t *testing.T) {
	got := Guidelines()
	got[0].Steps[0] = "changed"

	assert.NotEqual(t, "changed", Guidelines()[0].Steps[0])
}

func TestLocations(t *testing.T) {
	got := Locations()
	require.NotEmpty(t, got)
	for _, l := range got {
		assert.NotEmpty(t, l.Name)
		assert.NotEmpty(t, l.Accepts)
	}

	got[0].Accepts[0] = "changed"
	assert.NotEqual(t, "changed", Locations()[0].Accepts[0])
}
