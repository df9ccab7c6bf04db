package domain

// RugImage represents one browsable rug photo from the catalog
type RugImage struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	Code     string `json:"code,omitempty"`
}

// RoomImage represents one browsable room photo from the catalog.
// RoomType, Style and Color are normalized slugs used for filtering; the
// Raw* fields keep the original spreadsheet values for display.
type RoomImage struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	RoomType string `json:"roomType,omitempty"`
	Style    string `json:"style,omitempty"`
	Color    string `json:"color,omitempty"`
	RawRoom  string `json:"_room,omitempty"`
	RawStyle string `json:"_style,omitempty"`
	RawTone  string `json:"_tone,omitempty"`
}

// RoomFilter holds the optional query filters for the rooms endpoint
type RoomFilter struct {
	RoomType string
	Style    string
	Color    string
}

// IsZero reports whether no filter is set
func (f RoomFilter) IsZero() bool {
	return f.RoomType == "" && f.Style == "" && f.Color == ""
}

// CatalogOptions lists the distinct wizard choices extracted from the last
// rooms import
type CatalogOptions struct {
	Rooms  []string `json:"rooms"`
	Styles []string `json:"styles"`
	Tones  []string `json:"tones"`
}
