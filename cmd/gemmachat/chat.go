package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gemmachat/internal/chat"
	"gemmachat/pkg/types"
)

func newChatCmd(o *options) *cobra.Command {
	var prompt string
	var initTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, o)
			if err != nil {
				return err
			}
			a := newApp(cfg, newLogger(cfg.LogLevel))
			defer a.Close()

			out := cmd.OutOrStdout()
			ctx, cancel := context.WithTimeout(cmd.Context(), initTimeout)
			if _, err := a.sess.Wait(ctx); err != nil {
				fmt.Fprintln(out, "model still loading; replies use the fallback until it is ready")
			}
			cancel()
			// Surface an initialization failure recorded by the controller.
			for _, m := range a.ctrl.Messages() {
				fmt.Fprintf(out, "assistant> %s\n", m.Content)
			}

			if prompt != "" {
				return ask(cmd.Context(), a.ctrl, prompt, out)
			}
			return repl(cmd.Context(), a.ctrl, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Send one message and exit")
	cmd.Flags().DurationVar(&initTimeout, "init-timeout", 2*time.Minute, "How long to wait for the model before chatting")
	return cmd
}

// repl reads one message per line until EOF or /exit.
func repl(ctx context.Context, ctrl *chat.Controller, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "you> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/history":
			for _, m := range ctrl.Messages() {
				fmt.Fprintf(out, "%s> %s\n", m.Role, m.Content)
			}
			continue
		}
		if err := ask(ctx, ctrl, line, out); err != nil {
			return err
		}
	}
}

// ask sends prompt and prints the reply as it streams.
func ask(ctx context.Context, ctrl *chat.Controller, prompt string, out io.Writer) error {
	tokens := make(chan string, 64)
	end := make(chan error, 1)
	_, err := ctrl.Send(prompt, chat.Observer{
		OnToken: func(_, tok string) { tokens <- tok },
		OnDone:  func(types.Message) { end <- nil },
		OnError: func(_ types.Message, err error) { end <- err },
	})
	if err != nil {
		return err
	}
	fmt.Fprint(out, "assistant> ")
	for {
		select {
		case tok := <-tokens:
			fmt.Fprint(out, tok)
		case err := <-end:
			// Tokens are queued before the terminal callback; drain them.
		drain:
			for {
				select {
				case tok := <-tokens:
					fmt.Fprint(out, tok)
				default:
					break drain
				}
			}
			if err != nil {
				fmt.Fprintf(out, " [Error: %v]", err)
			}
			fmt.Fprintln(out)
			return nil
		case <-ctx.Done():
			fmt.Fprintln(out)
			return ctx.Err()
		}
	}
}
