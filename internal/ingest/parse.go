package ingest

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"chronicle/internal/services"
	"chronicle/internal/stages"
	"chronicle/internal/store"
)

// Parser implements the parse stage: it turns segments into attributed
// speaker turns. A line of the form "Name: text" opens a new turn; continuation
// lines attach to the current one. Lines before any attribution are credited
// to an anonymous narrator.
type Parser struct{}

func (Parser) Stage() string { return stages.Parse }

// narratorSpeaker labels unattributed text.
const narratorSpeaker = "Narrator"

var speakerCaser = cases.Title(language.English)

func (Parser) Process(ctx context.Context, item *store.WorkItem, upstream map[string][]byte) ([]byte, error) {
	var segments SegmentPayload
	if err := decode(stages.Parse, upstream, stages.Segment, &segments); err != nil {
		return nil, err
	}
	if len(segments.Segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, stages.Parse, "read segments",
			"segment payload is empty", nil)
	}

	payload := ParsePayload{}
	for _, segment := range segments.Segments {
		payload.Turns = append(payload.Turns, parseTurns(segment)...)
	}
	return encode(stages.Parse, payload)
}

func parseTurns(segment Segment) []Turn {
	var turns []Turn
	current := -1

	for _, line := range strings.Split(segment.Text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if speaker, rest, ok := splitSpeaker(trimmed); ok {
			turns = append(turns, Turn{
				Segment: segment.Index,
				Speaker: speakerCaser.String(speaker),
				Text:    rest,
			})
			current = len(turns) - 1
			continue
		}
		if current >= 0 {
			turns[current].Text = strings.TrimSpace(turns[current].Text + " " + trimmed)
			continue
		}
		turns = append(turns, Turn{Segment: segment.Index, Speaker: narratorSpeaker, Text: trimmed})
		current = len(turns) - 1
	}
	return turns
}

// splitSpeaker recognizes "Name: text" attributions. The name must be short
// and plain so that clock times and URLs do not read as speakers.
func splitSpeaker(line string) (speaker, rest string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	name := strings.TrimSpace(line[:idx])
	if name == "" || len(name) > 40 || strings.ContainsAny(name, "/.0123456789") {
		return "", "", false
	}
	rest = strings.TrimSpace(line[idx+1:])
	if rest == "" {
		return "", "", false
	}
	return name, rest, true
}
