package speechstream

import (
	"sort"
	"strings"
)

type channelTranscript struct {
	finals  []*RecognitionResult
	partial *RecognitionResult
}

// Transcript folds streamed results into a running transcript. For each
// channel it keeps the committed finals in arrival order and the latest
// partial. It is not safe for concurrent use; it belongs to whoever drains
// Session.Results.
type Transcript struct {
	channels map[int]*channelTranscript
}

func NewTranscript() *Transcript {
	return &Transcript{channels: make(map[int]*channelTranscript)}
}

// Add folds every result of resp.
func (t *Transcript) Add(resp *Response) {
	if resp == nil {
		return
	}
	for _, res := range resp.Results {
		t.AddResult(res)
	}
}

// AddResult folds one result. A final is appended and clears the channel's
// partial; a partial replaces the previous one. Results without
// alternatives are dropped.
func (t *Transcript) AddResult(res *RecognitionResult) {
	if res == nil || len(res.Alternatives) == 0 {
		return
	}
	ch := t.channels[res.ChannelTag]
	if ch == nil {
		ch = &channelTranscript{}
		t.channels[res.ChannelTag] = ch
	}
	if res.IsFinal {
		ch.finals = append(ch.finals, res)
		ch.partial = nil
		return
	}
	ch.partial = res
}

// Channels returns the channel tags seen so far in ascending order.
func (t *Transcript) Channels() []int {
	tags := make([]int, 0, len(t.channels))
	for tag := range t.channels {
		tags = append(tags, tag)
	}
	sort.Ints(tags)
	return tags
}

func (t *Transcript) Finals(channel int) []*RecognitionResult {
	ch := t.channels[channel]
	if ch == nil {
		return nil
	}
	return ch.finals
}

func (t *Transcript) Partial(channel int) *RecognitionResult {
	ch := t.channels[channel]
	if ch == nil {
		return nil
	}
	return ch.partial
}

// ChannelText returns the committed finals of channel followed by its live
// partial, if any.
func (t *Transcript) ChannelText(channel int) string {
	ch := t.channels[channel]
	if ch == nil {
		return ""
	}
	parts := make([]string, 0, len(ch.finals)+1)
	for _, res := range ch.finals {
		parts = appendText(parts, res.Transcript())
	}
	if ch.partial != nil {
		parts = appendText(parts, ch.partial.Transcript())
	}
	return strings.Join(parts, " ")
}

// FinalText returns only the committed text of channel.
func (t *Transcript) FinalText(channel int) string {
	parts := make([]string, 0)
	for _, res := range t.Finals(channel) {
		parts = appendText(parts, res.Transcript())
	}
	return strings.Join(parts, " ")
}

// Text returns the best-effort transcript of every channel, one line per
// channel in channel order.
func (t *Transcript) Text() string {
	lines := make([]string, 0, len(t.channels))
	for _, tag := range t.Channels() {
		lines = append(lines, t.ChannelText(tag))
	}
	return strings.Join(lines, "\n")
}

func appendText(parts []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return parts
	}
	return append(parts, s)
}

// Collect drains s into t and returns the session's terminal error.
func Collect(s *Session, t *Transcript) error {
	for resp := range s.Results() {
		t.Add(resp)
	}
	return s.Wait()
}
