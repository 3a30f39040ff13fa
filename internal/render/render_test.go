package render

import (
	"strings"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/lumiscrape/internal/domain"
)

func sample() *domain.MediaRecord {
	var prov domain.Fields
	prov.Set("country", domain.List([]string{"France", "Italy"}))
	prov.Set("year", domain.Text("1939"))
	return domain.NewMediaRecord(domain.RecordInput{
		URL:             "https://lumiere.example/students/items/48028",
		Title:           "The Rules of the Game",
		MediaURL:        "https://lumiere.example/m.mp4",
		DurationMinutes: 110,
		HasSubtitles:    true,
		Subtitles:       mo.Some("English"),
		Provenance:      prov,
	})
}

func TestText(t *testing.T) {
	got := Text(sample())
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	require.Len(t, lines, 10)
	assert.Equal(t, "URL: https://lumiere.example/students/items/48028", lines[0])
	assert.Equal(t, "ID: 48028", lines[1])
	assert.Equal(t, "DURATION_MINUTES: 110", lines[4])
	assert.Equal(t, "HAS_SUBTITLES: true", lines[5])
	assert.Equal(t, "SUBTITLES: English", lines[6])
	assert.Equal(t, "COUNTRY: France, Italy", lines[7])
	assert.Equal(t, "SYNOPSIS: ", lines[9])
}

func TestItem(t *testing.T) {
	got := Item(sample())
	assert.True(t, strings.HasPrefix(got, Separator+"\n"))
	assert.Contains(t, got, `Requested "The Rules of the Game" from https://lumiere.example/students/items/48028`)
	assert.Contains(t, got, "Number of Attributes: 10\n")
	assert.Empty(t, Item(nil))
	assert.Empty(t, Text(nil))
}
