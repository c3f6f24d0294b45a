package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devrev/hvac-voice-agent/internal/app"
	"github.com/devrev/hvac-voice-agent/internal/dialog"
	"github.com/devrev/hvac-voice-agent/internal/speech"
	"github.com/devrev/hvac-voice-agent/internal/store"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Print the fixed prompts that are prewarmed into the audio cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cal, err := app.NewCalendar(cfg.Business)
		if err != nil {
			return err
		}
		machine := app.NewMachine(cfg, dialog.Deps{
			Calendar: cal,
			Booker:   store.NewMemoryStore(),
			Logger:   logger,
		})

		out := cmd.OutOrStdout()
		for _, text := range machine.Prompts().Static() {
			fmt.Fprintf(out, "%s  %s\n", speech.Key(cfg.ElevenLabs.VoiceID, text)[:12], text)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
}
