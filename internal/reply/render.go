package reply

import (
	"fmt"
	"html"
	"strings"

	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// Message is a rendered reply. HTML is empty for text-only channels.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// Counts summarizes an auto-apply pass for the acknowledgment.
type Counts struct {
	Applied   int
	Review    int
	Failed    int
	Summary   string
	TripName  string
	FullyDone bool
}

// Acknowledgment confirms a processed message. The wording depends on
// whether anything is waiting for an owner.
func Acknowledgment(c Counts) Message {
	var b strings.Builder
	switch {
	case c.Applied == 0 && c.Review == 0:
		fmt.Fprintf(&b, "Got your message for %s, but I didn't find any trip details in it.", c.TripName)
	case c.FullyDone:
		fmt.Fprintf(&b, "Thanks! Added %s to %s.", plural(c.Applied, "item"), c.TripName)
	default:
		fmt.Fprintf(&b, "Thanks! Got it for %s.", c.TripName)
		if c.Applied > 0 {
			fmt.Fprintf(&b, " Added %s.", plural(c.Applied, "item"))
		}
		fmt.Fprintf(&b, " %s waiting for a trip owner to review.", plural(c.Review, "item"))
	}
	if s := strings.TrimSpace(c.Summary); s != "" {
		b.WriteString("\n" + s)
	}
	return withHTML("Re: "+c.TripName, b.String())
}

// Disambiguation asks the sender to name a trip.
func Disambiguation(candidates []domain.Trip) Message {
	var b strings.Builder
	b.WriteString("You're on more than one trip. Which one is this for?\n")
	for _, t := range candidates {
		fmt.Fprintf(&b, "- %s (code: %s)\n", t.Name, t.TripCode)
	}
	b.WriteString(`Reply "switch to <code>" and then resend your message, or include the code in it.`)
	return withHTML("Which trip?", b.String())
}

// NotFound tells an unknown sender nothing could be matched.
func NotFound() Message {
	return withHTML("Trip not found",
		"Sorry, I couldn't find a trip you're a member of. Ask a trip owner to add this address or number to the trip.")
}

// Switched acknowledges a "switch to <code>" command.
func Switched(trip domain.Trip) Message {
	return withHTML("Switched to "+trip.Name,
		fmt.Sprintf("OK, messages from you will now go to %s (code: %s).", trip.Name, trip.TripCode))
}

// NoContent answers an empty message.
func NoContent(tripName string) Message {
	return withHTML("Re: "+tripName,
		fmt.Sprintf("Your message for %s was empty. Send text, a photo, or a PDF.", tripName))
}

// ExtractionFailed says the message is stored for manual review.
func ExtractionFailed(tripName string) Message {
	return withHTML("Re: "+tripName,
		fmt.Sprintf("Got your message for %s. I couldn't read the details automatically, so a trip owner will review it.", tripName))
}

func withHTML(subject, text string) Message {
	paragraphs := strings.Split(html.EscapeString(text), "\n")
	return Message{
		Subject: subject,
		Text:    text,
		HTML:    "<p>" + strings.Join(paragraphs, "<br>") + "</p>",
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
