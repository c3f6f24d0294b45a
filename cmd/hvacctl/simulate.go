package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/devrev/hvac-voice-agent/internal/app"
	"github.com/devrev/hvac-voice-agent/internal/dialog"
	"github.com/devrev/hvac-voice-agent/internal/extract"
	"github.com/devrev/hvac-voice-agent/internal/resilience"
	"github.com/devrev/hvac-voice-agent/internal/store"
)

var (
	simulateFrom  string
	simulateNoLLM bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Talk to the agent on the terminal, one line per caller turn",
	Long: `Runs the conversation against in-memory stores. Type what the caller
says; an empty line is treated as silence. The call ends when the agent
hangs up or transfers, or on end of input.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cal, err := app.NewCalendar(cfg.Business)
		if err != nil {
			return err
		}
		faq, err := app.LoadKnowledge(cfg, logger)
		if err != nil {
			return err
		}

		var llm extract.Extractor
		if cfg.OpenAI.Enabled && !simulateNoLLM {
			exec := resilience.NewExecutor("openai", resilience.RetryConfig{
				MaxRetries:      cfg.Retry.MaxRetries,
				InitialInterval: cfg.Retry.InitialInterval,
				MaxInterval:     cfg.Retry.MaxInterval,
			}, resilience.BreakerConfig{}, logger)
			llm = extract.NewOpenAIExtractor(extract.OpenAIConfig{
				APIKey:  cfg.OpenAI.APIKey,
				Model:   cfg.OpenAI.Model,
				Timeout: cfg.OpenAI.Timeout,
			}, exec, logger)
		}

		db := store.NewMemoryStore()
		machine := app.NewMachine(cfg, dialog.Deps{
			Calendar:  cal,
			Booker:    db,
			Knowledge: faq,
			LLM:       llm,
			Logger:    logger,
		})

		return simulate(cmd, machine, db, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func simulate(cmd *cobra.Command, machine *dialog.Machine, db *store.MemoryStore, in io.Reader, out io.Writer) error {
	s := dialog.NewSession("CA-simulated", simulateFrom, "", time.Now())
	reply := machine.Start(s)
	printReply(out, reply)

	scanner := bufio.NewScanner(in)
	for reply.Listen {
		fmt.Fprint(out, "caller> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}
		reply = machine.Step(cmd.Context(), s, scanner.Text())
		printReply(out, reply)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	outcome := s.Outcome
	if outcome == dialog.OutcomeNone {
		outcome = dialog.OutcomeAbandoned
	}
	fmt.Fprintf(out, "\n--- outcome: %s, state: %s, turns: %d\n", outcome, s.State, s.Turn)
	if id := s.Booking.AppointmentID; id != "" {
		appt, err := db.GetAppointment(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "--- appointment %s: %s, %s, %s %s\n",
			appt.ID, appt.CustomerName, appt.Address, appt.Date.Format("Mon Jan 2"), appt.Window)
	}
	return nil
}

func printReply(out io.Writer, r dialog.Reply) {
	fmt.Fprintf(out, "agent> %s\n", r.Text)
	switch {
	case r.Dial != "":
		fmt.Fprintf(out, "       [transferring to %s]\n", r.Dial)
	case r.Hangup:
		fmt.Fprintln(out, "       [hangs up]")
	case len(r.Hints) > 0:
		fmt.Fprintf(out, "       [listening: %s]\n", strings.Join(r.Hints, ", "))
	}
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFrom, "from", "+15555550100", "caller ID of the simulated call")
	simulateCmd.Flags().BoolVar(&simulateNoLLM, "no-llm", false, "use heuristic extraction only")
	rootCmd.AddCommand(simulateCmd)
}
