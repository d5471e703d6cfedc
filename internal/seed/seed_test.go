package seed

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/prayerwall/internal/model"
)

func TestParse(t *testing.T) {
	doc := `prayers:
  - title: Healing for Anna
    body: |
      Surgery on Friday
    author: Ruth
  - title: "  Rain  "
    key: rain-2026
`
	items, err := Parse(strings.NewReader(doc), "Deacon")
	require.NoError(t, err)
	want := []model.PrayerItem{
		{Title: "Healing for Anna", Body: "Surgery on Friday", Author: "Ruth"},
		{Key: "rain-2026", Title: "Rain", Author: "Deacon"},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsMissingTitle(t *testing.T) {
	_, err := Parse(strings.NewReader("prayers:\n  - body: no title\n"), "")
	require.ErrorContains(t, err, "prayer 1")
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("prayers:\n  - title: x\n    likes: 4\n"), "")
	require.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	items, err := Parse(strings.NewReader(""), "")
	require.NoError(t, err)
	require.Empty(t, items)
}
