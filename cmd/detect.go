package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

// NewDetectCommand creates the 'detect' command.
func NewDetectCommand(deps *Deps) *cobra.Command {
	var (
		timestampMs int64
		speaker     string
	)

	cmd := &cobra.Command{
		Use:   "detect [TEXT...]",
		Short: "Detect meeting phrases in a line of text",
		Long: `Run the phrase matcher over a single utterance and print what it finds.

Detection is local and stateless: nothing is queued or enhanced. With no
arguments the text is read from standard input.

Categories: action_item, decision, question, deferred, risk, followup,
commitment, concern and ambiguity. At most one phrase is reported per
category.

Examples:
  penf-live detect "I'll follow up with finance by Friday"
  penf-live detect --timestamp 12000 "let's table that for now"
  echo "we decided to ship Monday" | penf-live detect --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				text = string(data)
			}
			return runDetect(cmd.OutOrStdout(), deps, text, timestampMs, speaker)
		},
	}

	cmd.Flags().Int64Var(&timestampMs, "timestamp", 0, "Recording offset of the utterance in milliseconds")
	cmd.Flags().StringVar(&speaker, "speaker", "", "Speaker the utterance is attributed to")

	return cmd
}

type detectResult struct {
	Phrases []phrases.DetectedPhrase `json:"phrases" yaml:"phrases"`
}

func runDetect(w io.Writer, deps *Deps, text string, timestampMs int64, speaker string) error {
	cfg, err := deps.config()
	if err != nil {
		return err
	}
	matcher, err := newMatcher(cfg)
	if err != nil {
		return err
	}

	found := matcher.Detect(text, timestampMs)
	if speaker != "" {
		for i := range found {
			found[i] = found[i].WithSpeaker(speaker)
		}
	}

	return output(w, cfg.OutputFormat, detectResult{Phrases: found}, func(w io.Writer) error {
		return printPhrases(w, found)
	})
}
