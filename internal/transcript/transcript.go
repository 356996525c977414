// Package transcript parses Claude Code session transcripts: append-only
// JSONL event logs mixing user prompts, assistant output, and tool traffic.
package transcript

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
)

// Tool calls that carry bulk data and no summarizable signal.
var skipTools = map[string]struct{}{
	"Read":      {},
	"Grep":      {},
	"Glob":      {},
	"WebFetch":  {},
	"WebSearch": {},
}

// Tool calls that mutate files and are worth a compact edit marker.
var editTools = map[string]struct{}{
	"Write": {},
	"Edit":  {},
}

// Digest is the full-session view: everything the user asked, everything
// the assistant produced, and the files it touched.
type Digest struct {
	Prompts   string
	Responses string
	Edits     string
	TurnCount int
}

// Turn is the latest prompt/response pair of a transcript.
type Turn struct {
	Prompt     string
	Response   string
	Edits      string
	TurnNumber int
}

type entry struct {
	Type    string  `json:"type"`
	Message message `json:"message"`
}

type message struct {
	Content content `json:"content"`
}

// content is either a plain string or a list of typed blocks. The two
// shapes appear interchangeably in transcripts, so both decode into the
// same value and flatten through flatten().
type content struct {
	text   string
	blocks []block
	plain  bool
}

type block struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (c *content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.text = s
		c.plain = true
		return nil
	}
	// Elements decode individually: a stray non-object in the list must
	// not discard the blocks around it.
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		// Other shapes (objects, null) flatten to empty content.
		return nil
	}
	for _, e := range elems {
		var b block
		if err := json.Unmarshal(e, &b); err != nil {
			continue
		}
		c.blocks = append(c.blocks, b)
	}
	return nil
}

// flatten flattens the content to its user-visible text: the plain string as
// is, or all text blocks joined with single spaces in original order.
func (c content) flatten() string {
	if c.plain {
		return c.text
	}
	parts := make([]string, 0, len(c.blocks))
	for _, b := range c.blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, " ")
}

// isRealUserTurn reports whether a user entry carries actual text, as
// opposed to tool-result echoes and other empty payloads.
func isRealUserTurn(e entry) bool {
	if e.Type != "user" {
		return false
	}
	return strings.TrimSpace(e.Message.Content.flatten()) != ""
}

// ParseTranscript reads the whole transcript and accumulates a digest.
// A missing or unreadable file yields an empty digest, never an error;
// unparsable lines are skipped.
func ParseTranscript(path string) Digest {
	entries := readEntries(path)

	var d Digest
	var prompts, responses, edits []string
	for _, e := range entries {
		switch e.Type {
		case "user":
			if isRealUserTurn(e) {
				prompts = append(prompts, e.Message.Content.flatten())
				d.TurnCount++
			}
		case "assistant":
			accumulateAssistant(e, &responses, &edits)
		}
	}
	d.Prompts = strings.Join(prompts, "\n\n")
	d.Responses = strings.Join(responses, "\n\n")
	d.Edits = strings.Join(edits, "\n")
	return d
}

// ExtractLatestTurn finds the last genuine user message and collects the
// assistant output that follows it. The returned turn number is the count
// of genuine user turns in the entire transcript up to and including the
// located one, which makes it the 1-based ordinal used for storage.
func ExtractLatestTurn(path string) Turn {
	entries := readEntries(path)

	turnCount := 0
	lastUserIdx := -1
	for i, e := range entries {
		if isRealUserTurn(e) {
			turnCount++
			lastUserIdx = i
		}
	}
	if lastUserIdx < 0 {
		return Turn{}
	}

	var responses, edits []string
	for _, e := range entries[lastUserIdx+1:] {
		if e.Type != "assistant" {
			continue
		}
		accumulateAssistant(e, &responses, &edits)
	}

	return Turn{
		Prompt:     entries[lastUserIdx].Message.Content.flatten(),
		Response:   strings.Join(responses, "\n\n"),
		Edits:      strings.Join(edits, "\n"),
		TurnNumber: turnCount,
	}
}

// accumulateAssistant applies the shared assistant-content rules: text
// blocks go to the response accumulator, mutating tool calls emit a
// "[Tool: path]" marker, tools in the skip set and everything else are
// ignored.
func accumulateAssistant(e entry, responses, edits *[]string) {
	c := e.Message.Content
	if c.plain {
		*responses = append(*responses, c.text)
		return
	}
	for _, b := range c.blocks {
		switch b.Type {
		case "text":
			*responses = append(*responses, b.Text)
		case "tool_use":
			if _, skip := skipTools[b.Name]; skip {
				continue
			}
			if _, edit := editTools[b.Name]; !edit {
				continue
			}
			var input struct {
				FilePath string `json:"file_path"`
			}
			if err := json.Unmarshal(b.Input, &input); err != nil {
				continue
			}
			if input.FilePath != "" {
				*edits = append(*edits, "["+b.Name+": "+input.FilePath+"]")
			}
		}
	}
}

func readEntries(path string) []entry {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var entries []entry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}
