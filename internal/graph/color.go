package graph

import "hash/fnv"

// Palette holds the folder colours. Keys map onto it by FNV-1a hash, so two
// folders can share a colour.
var Palette = [30]string{
	"#E6194B", "#3CB44B", "#FFE119", "#4363D8", "#F58231",
	"#911EB4", "#46F0F0", "#F032E6", "#BCF60C", "#FABEBE",
	"#008080", "#E6BEFF", "#9A6324", "#FFFAC8", "#800000",
	"#AAFFC3", "#808000", "#FFD8B1", "#000075", "#808080",
	"#1F77B4", "#FF7F0E", "#2CA02C", "#D62728", "#9467BD",
	"#8C564B", "#E377C2", "#7F7F7F", "#BCBD22", "#17BECF",
}

// FolderColor returns the palette colour for a folder key.
func FolderColor(key string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return Palette[h.Sum32()%uint32(len(Palette))]
}

// colorizer memoises FolderColor for one layout.
type colorizer struct {
	cache map[string]string
}

func newColorizer() *colorizer {
	return &colorizer{cache: make(map[string]string)}
}

func (c *colorizer) color(key string) string {
	if col, ok := c.cache[key]; ok {
		return col
	}
	col := FolderColor(key)
	c.cache[key] = col
	return col
}
