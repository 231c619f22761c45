package notes

import "github.com/kalambet/buddy/internal/gateway"

// demoPrefix marks fabricated notes so they can never pass for real data.
const demoPrefix = "[Demo] "

// demoNotes is shown when the backend cannot be reached and nothing was ever
// loaded. Ids are negative so they never collide with backend ids.
func demoNotes() map[int]gateway.Note {
	set := []gateway.Note{
		{ID: -1, Content: demoPrefix + "Meeting with team at 2 PM", Color: "yellow"},
		{ID: -2, Content: demoPrefix + "Send the quarterly report to finance", Color: "blue"},
		{ID: -3, Content: demoPrefix + "Book travel for the client visit", Color: "green"},
	}
	out := make(map[int]gateway.Note, len(set))
	for _, n := range set {
		out[n.ID] = n
	}
	return out
}

// IsDemo reports whether n was fabricated locally.
func IsDemo(n gateway.Note) bool { return n.ID < 0 }
