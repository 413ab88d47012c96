package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/westrik/parley/internal/conversation"
	"github.com/westrik/parley/internal/session"
)

func newReplayCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "replay <segments.ndjson>",
		Short: "Replay a transcript segment log and print the merged conversation",
		Long: `Reads newline-delimited JSON transcript segments from a file, runs them
through the reconciler and prints the resulting ordered conversation.
Useful for debugging interim/final merge behavior against captured logs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, args[0], sessionID)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "replay", "session identifier")
	return cmd
}

func runReplay(cmd *cobra.Command, path, sessionID string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open segment log: %w", err)
	}
	defer f.Close()

	eng, err := session.New(session.Opts{SessionID: sessionID})
	if err != nil {
		return err
	}
	defer eng.Close()

	count, err := feedSegments(eng, f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Replayed %d segments into session %q\n\n", count, sessionID)
	printTranscript(out, eng)
	return nil
}

// feedSegments pushes one segment per NDJSON line. Blank lines are skipped;
// a malformed line aborts the replay with its line number.
func feedSegments(eng *session.Engine, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	count := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var seg conversation.Segment
		if err := json.Unmarshal([]byte(line), &seg); err != nil {
			return count, fmt.Errorf("parse segment at line %d: %w", lineNo, err)
		}
		eng.PushSegment(seg)
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("read segment log: %w", err)
	}
	return count, nil
}

func printTranscript(out io.Writer, eng *session.Engine) {
	for _, msg := range eng.Messages() {
		marker := ""
		if msg.Type == conversation.TypeTranscription && !msg.IsFinal {
			marker = " [interim]"
		}
		fmt.Fprintf(out, "%s  %-5s  %s%s\n",
			msg.Timestamp.Format("15:04:05.000"), msg.Sender, msg.Content, marker)
	}

	for _, speaker := range []conversation.Sender{conversation.SenderUser, conversation.SenderAgent} {
		if p := eng.Preview(speaker); p != nil {
			fmt.Fprintf(out, "\npending %s preview: %s\n", speaker, p.Text)
		}
	}
}
