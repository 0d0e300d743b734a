package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeFoldsComposedAndDecomposed(t *testing.T) {
	require.Equal(t, Normalize("JOÃO"), Normalize("joão"))
	require.Equal(t, "", Normalize("   "))
	require.True(t, ContainsFold("Arroz Tio João 5kg", " tio JOÃO "))
	require.False(t, ContainsFold("Arroz", ""))
}

func TestValidEAN(t *testing.T) {
	require.True(t, ValidEAN("12345678"))
	require.True(t, ValidEAN("7891234567890"))
	require.False(t, ValidEAN("1234567"))
	require.False(t, ValidEAN("789123456789A"))
	require.False(t, ValidEAN(""))
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	require.Equal(t, `%100\% suco\_uva%`, likePattern(" 100% suco_uva "))
	require.Equal(t, `%a\\b%`, likePattern(`a\b`))
}
