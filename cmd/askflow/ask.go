package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sweetpotato0/askflow/history"
	"github.com/sweetpotato0/askflow/rag/agentic"
)

func newAskCmd(root *rootOptions) *cobra.Command {
	var (
		session string
		quiet   bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question, or start a chat when no question is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			cfg, err := root.load()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if session == "" {
				session = uuid.NewString()
			}
			progress := cmd.ErrOrStderr()
			if quiet {
				progress = io.Discard
			}
			s := &chat{app: a, session: session, out: cmd.OutOrStdout(), progress: progress}

			if len(args) > 0 {
				return s.ask(ctx, strings.Join(args, " "))
			}
			return s.loop(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "conversation id; reuse it to continue a conversation")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide progress labels")
	return cmd
}

// chat runs questions of one conversation through the engine.
type chat struct {
	app      *app
	session  string
	out      io.Writer
	progress io.Writer
}

func (c *chat) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.progress, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch question {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}
		if err := c.ask(ctx, question); err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.app.logger.Error("question failed", "error", err)
		}
	}
}

func (c *chat) ask(ctx context.Context, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return errors.New("question cannot be empty")
	}
	a := c.app
	convCtx, err := history.Load(ctx, a.history, c.session, a.cfg.History.Window)
	if err != nil {
		a.logger.Warn("history unavailable", "session", c.session, "error", err)
	}

	persona := a.engine.Persona()
	var final *agentic.State
	for evt := range a.engine.Stream(ctx, question, convCtx) {
		if label := agentic.ProgressLabel(persona, evt); label != "" {
			fmt.Fprintln(c.progress, label)
		}
		if evt.Terminal() {
			final = evt.State
		}
	}
	if final == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return errors.New("workflow ended without an answer")
	}

	reply := agentic.FormatReply(persona, final.FinalResponse, a.engine.Review(ctx, final))
	fmt.Fprintln(c.out, reply)
	fmt.Fprintln(c.out)

	if err := history.Record(ctx, a.history, c.session, question, reply); err != nil {
		a.logger.Warn("could not record history", "session", c.session, "error", err)
	}
	return nil
}
