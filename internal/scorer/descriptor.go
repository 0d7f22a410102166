package scorer

import (
	"strings"
	"time"
)

// Descriptor is the structured text fed to the relevance model for one side of a pair.
type Descriptor struct {
	Performers []string
	Studio     string
	Date       *time.Time
	Title      string
}

// String renders "Performer: … | Studio: … | Date: … | Title: …", leaving out empty fields.
func (d Descriptor) String() string {
	parts := make([]string, 0, 4)
	if len(d.Performers) > 0 {
		parts = append(parts, "Performer: "+strings.Join(d.Performers, ", "))
	}
	if d.Studio != "" {
		parts = append(parts, "Studio: "+d.Studio)
	}
	if d.Date != nil && !d.Date.IsZero() {
		parts = append(parts, "Date: "+d.Date.Format(time.DateOnly))
	}
	parts = append(parts, "Title: "+strings.TrimSpace(d.Title))
	return strings.Join(parts, " | ")
}
