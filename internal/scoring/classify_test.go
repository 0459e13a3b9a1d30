package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		title       string
		description string
		want        string
	}{
		{"no matches", "Annual maintenance contract", "", "residential"},
		{"masonry wins", "Brick repointing", "mortar repair on rear wall", "masonry"},
		{"government wins", "City of Charleston public works", "Department of Transportation", "government"},
		{"structural wins", "Foundation underpinning", "helical pile installation", "structural"},
		{"tie resolves to default", "Historic masonry", "", "residential"},
		{"case insensitive", "HOTEL RETAIL OFFICE", "", "commercial"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Classify(tc.title, tc.description))
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	t.Parallel()
	title, desc := "Courthouse stucco and brick facade", "federal building"
	first := Classify(title, desc)
	for range 10 {
		require.Equal(t, first, Classify(title, desc))
	}
}

func TestCategoriesEndsWithDefault(t *testing.T) {
	t.Parallel()
	cats := Categories()
	require.Len(t, cats, 6)
	require.Equal(t, "residential", cats[len(cats)-1])
}
