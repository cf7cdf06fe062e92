// Command chatcli is a terminal client for manual testing: it joins one
// group or direct conversation, prints its timeline and sends stdin lines.
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
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/projectchat-server/internal/chatclient"
	logpkg "github.com/vovakirdan/projectchat-server/internal/log"
)

var (
	serverURL string
	token     string
	groupID   int64
	peerID    int64
	history   int
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:          "chatcli",
	Short:        "Interactive client for the projectchat server",
	SilenceUsage: true,
	RunE:         run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&serverURL, "url", "ws://localhost:8080/ws", "server WebSocket URL")
	flags.StringVar(&token, "token", os.Getenv("PROJECTCHAT_TOKEN"), "access token (or PROJECTCHAT_TOKEN)")
	flags.Int64Var(&groupID, "group", 0, "group to join")
	flags.Int64Var(&peerID, "peer", 0, "user to message directly")
	flags.IntVar(&history, "history", 50, "history page size")
	flags.StringVar(&logLevel, "log-level", "warn", "client log level")
}

func run(cmd *cobra.Command, _ []string) error {
	if (groupID == 0) == (peerID == 0) {
		return errors.New("exactly one of --group or --peer is required")
	}
	if token == "" {
		return errors.New("--token is required")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chatclient.Dial(ctx, serverURL, token, chatclient.Options{Logger: logpkg.New(logLevel)})
	if err != nil {
		return err
	}
	defer client.Close()

	conv := chatclient.Direct(peerID)
	if groupID != 0 {
		conv = chatclient.Group(groupID)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "connected as %s (%d), conversation %s\n", client.Username, client.UserID, conv)

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
			stop()
		}
	}()
	go render(ctx, client, conv, out)

	if groupID != 0 {
		err = client.FetchGroupHistory(ctx, groupID, history)
	} else {
		err = client.FetchDirectHistory(ctx, peerID, history)
	}
	if err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			body := strings.TrimSpace(line)
			if body == "" {
				continue
			}
			if groupID != 0 {
				_, err = client.SendGroup(ctx, groupID, body)
			} else {
				_, err = client.SendDirect(ctx, peerID, body)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
		}
	}
}

func render(ctx context.Context, client *chatclient.Client, conv chatclient.Conversation, out io.Writer) {
	shown := 0
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-client.Updates():
			if u.Err != nil {
				fmt.Fprintf(out, "! %s: %s\n", u.Err.Code, u.Err.Msg)
			}
			if u.Conversation != conv {
				continue
			}
			entries := client.Timeline(conv).Entries()
			if len(entries) < shown {
				shown = 0
			}
			for _, e := range entries[shown:] {
				fmt.Fprintf(out, "[%s] %s: %s (%s)\n", e.At.Format("15:04:05"), e.SenderName, e.Body, e.Status)
			}
			shown = len(entries)
		}
	}
}
