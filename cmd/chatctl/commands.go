package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/markdave123-py/Parley/internal/chatclient"
	"github.com/markdave123-py/Parley/internal/models"
)

const titleTypingDelay = 40 * time.Millisecond

func credentialsCmd(use, short string, call func(*cobra.Command, *chatclient.Client, string, string) (*chatclient.AuthResult, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			res, err := call(cmd, newClient(), args[0], password)
			if err != nil {
				return err
			}
			if err := saveToken(res.Token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", res.User.Email)
			return nil
		},
	}
	cmd.Flags().String("password", "", "password (prompted when omitted)")
	return cmd
}

func readPassword(cmd *cobra.Command) (string, error) {
	if pw, _ := cmd.Flags().GetString("password"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	if f, ok := cmd.InOrStdin().(interface{ Fd() uintptr }); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(raw), err
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newRegisterCmd() *cobra.Command {
	return credentialsCmd("register", "Create an account and store its token",
		func(cmd *cobra.Command, c *chatclient.Client, email, password string) (*chatclient.AuthResult, error) {
			return c.Register(cmd.Context(), email, password)
		})
}

func newLoginCmd() *cobra.Command {
	return credentialsCmd("login", "Sign in and store the token",
		func(cmd *cobra.Command, c *chatclient.Client, email, password string) (*chatclient.AuthResult, error) {
			return c.Login(cmd.Context(), email, password)
		})
}

func newMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			u, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tjoined %s\n", u.ID, u.Email, u.CreatedAt.Format(time.DateOnly))
			return nil
		},
	}
}

func newConversationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			titles, err := loadTitles()
			if err != nil {
				return err
			}
			convs, err := c.ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			renderer := chatclient.NewTitleRenderer(out, titles, titleTypingDelay)
			for _, conv := range convs {
				fmt.Fprintf(out, "%s  ", conv.ID)
				if err := renderer.Render(conv); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "Print a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			msgs, err := c.ListMessages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s> %s\n", m.Role, m.Content)
			}
			return nil
		},
	}
}

func newChatCmd() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively; replies stream as they are generated",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := authedClient()
			if err != nil {
				return err
			}
			titles, err := loadTitles()
			if err != nil {
				return err
			}
			log := newLogger()
			defer func() { _ = log.Sync() }()

			out := cmd.OutOrStdout()
			cache := chatclient.NewCache(c)
			renderer := chatclient.NewTitleRenderer(out, titles, titleTypingDelay)
			printer := newLivePrinter(out)

			var pendingTitle string
			sess := chatclient.NewSession(c, cache,
				chatclient.WithLogger(log),
				chatclient.WithOnChange(printer.update),
				chatclient.WithNavigator(func(id string) {
					fmt.Fprintf(out, "(conversation %s)\n", id)
				}),
				chatclient.WithTitleUpdate(func(id, _ string) { pendingTitle = id }),
			)

			if conversationID != "" {
				history, err := cache.Messages(cmd.Context(), conversationID)
				if err != nil {
					return err
				}
				for _, m := range history {
					fmt.Fprintf(out, "%s> %s\n", m.Role, m.Content)
				}
				printer.seed(history)
				sess.Open(conversationID, history)
			}

			in := bufio.NewScanner(cmd.InOrStdin())
			in.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for {
				fmt.Fprint(out, "you> ")
				if !in.Scan() {
					fmt.Fprintln(out)
					return in.Err()
				}
				line := strings.TrimSpace(in.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					return nil
				}

				pendingTitle = ""
				if err := sess.Send(cmd.Context(), line); err != nil {
					log.Debug("turn ended with error", zap.Error(err))
				}
				printer.endTurn()

				if pendingTitle != "" {
					if conv, ok := cache.Conversation(pendingTitle); ok {
						fmt.Fprint(out, "title: ")
						if err := renderer.Render(conv); err != nil {
							return err
						}
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "resume an existing conversation")
	return cmd
}

// livePrinter writes assistant text as it arrives, tracking how much of each
// message has already been printed.
type livePrinter struct {
	out       io.Writer
	printed   map[string]int
	composing bool
	open      string
}

func newLivePrinter(out io.Writer) *livePrinter {
	return &livePrinter{out: out, printed: map[string]int{}}
}

func (p *livePrinter) seed(history []models.Message) {
	for _, m := range history {
		p.printed[m.ID] = len(m.Content)
	}
}

func (p *livePrinter) update(s chatclient.Snapshot) {
	if s.Composing && !p.composing {
		fmt.Fprint(p.out, "assistant is typing...\r")
	}
	p.composing = s.Composing

	for _, m := range s.Messages {
		if m.Role != models.RoleAssistant {
			continue
		}
		n, seen := p.printed[m.ID]
		if seen && n >= len(m.Content) {
			continue
		}
		if m.ID != p.open {
			if p.open != "" {
				fmt.Fprintln(p.out)
			}
			fmt.Fprint(p.out, "assistant> ")
			p.open = m.ID
		}
		fmt.Fprint(p.out, m.Content[n:])
		p.printed[m.ID] = len(m.Content)
	}
}

func (p *livePrinter) endTurn() {
	if p.open != "" {
		fmt.Fprintln(p.out)
		p.open = ""
	}
	p.composing = false
}
