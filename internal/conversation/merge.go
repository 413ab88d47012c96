package conversation

import "time"

// InterimReplaceWindow is the maximum timestamp distance between a final
// transcription and the interim entry it may replace in place.
const InterimReplaceWindow = 500 * time.Millisecond

// findInterimMatch returns the index of an interim transcription from the
// same sender as candidate whose timestamp lies within
// InterimReplaceWindow of candidate's, or -1 when no such entry exists.
// Only final transcriptions are eligible to replace an interim; anything
// else never matches. Pure function: msgs is not modified.
func findInterimMatch(msgs []Message, candidate Message) int {
	if candidate.Type != TypeTranscription || !candidate.IsFinal {
		return -1
	}
	for i, m := range msgs {
		if m.Type != TypeTranscription || m.IsFinal {
			continue
		}
		if m.Sender != candidate.Sender {
			continue
		}
		d := candidate.Timestamp.Sub(m.Timestamp)
		if d < 0 {
			d = -d
		}
		if d <= InterimReplaceWindow {
			return i
		}
	}
	return -1
}
