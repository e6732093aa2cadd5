package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satriahrh/buddy/adapters/tts"
	"github.com/satriahrh/buddy/usecase"
)

var preferredVoice string

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the synthesizer voices and the narration voice",
	Long: `List the voices of the ElevenLabs catalog and the voice a session
would narrate with for the preferred voice name.

Examples:
  buddyctl voices
  buddyctl voices --preferred "Rachel"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		elevenLabs, err := tts.NewElevenLabsTTS(tts.NewElevenLabsConfigFromEnv(), logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		voices, err := elevenLabs.Voices(ctx)
		if err != nil {
			return fmt.Errorf("failed to list voices: %w", err)
		}

		profile := usecase.DefaultVoiceProfile()
		if preferredVoice != "" {
			profile.PreferredVoice = preferredVoice
		}
		output := usecase.NewSpeechOutputController(nil, profile, logger)
		defer output.Close()
		output.UpdateVoices(voices)
		preference := output.Preference()

		if jsonOutput {
			return printJSON(preference)
		}

		out := cmd.OutOrStdout()
		for _, v := range preference.AvailableVoices {
			marker := " "
			if preference.SelectedVoice != nil && preference.SelectedVoice.Name == v.Name {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-32s %-8s %s\n", marker, v.Name, v.Lang, v.ID)
		}
		if preference.SelectedVoice == nil {
			fmt.Fprintln(out, "\nNo voice matches; the engine default voice narrates.")
		}
		return nil
	},
}

func init() {
	voicesCmd.Flags().StringVar(&preferredVoice, "preferred", "", "preferred voice name (default "+usecase.DefaultVoiceProfile().PreferredVoice+")")
	rootCmd.AddCommand(voicesCmd)
}
