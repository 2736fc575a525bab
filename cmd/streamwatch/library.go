package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/anonto42/shelfstream/internal/library"
	"github.com/anonto42/shelfstream/internal/messaging"
	"github.com/anonto42/shelfstream/internal/models"
)

var bookCmd = &cobra.Command{
	Use:   "book <id>",
	Short: "Print a book with its comments and reviews.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession()
		if err != nil {
			return err
		}
		return showBook(cmd.Context(), sess.api, args[0], cmd.OutOrStdout())
	},
}

var inboxCmd = &cobra.Command{
	Use:   "inbox [conversation-id]",
	Short: "List conversations, or open one and chat. Typed lines are sent, \"quit\" leaves.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		sess, err := openSession()
		if err != nil {
			return err
		}
		if !sess.viewer.Authenticated() {
			return errors.New("inbox needs a stored token, run login first")
		}
		conversationID := ""
		if len(args) == 1 {
			conversationID = args[0]
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go sess.run(ctx)
		return chat(ctx, sess.api, sess.adapter, sess.viewer.ID(), conversationID, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func showBook(ctx context.Context, api library.BookAPI, id string, out io.Writer) error {
	d, err := library.LoadBookDetail(ctx, api, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s by %s (rating %.1f, on %d shelves)\n", d.Book.Title, d.Book.Author, d.Book.Rating, d.Book.ShelfCount)
	if d.Book.Description != "" {
		fmt.Fprintln(out, d.Book.Description)
	}

	fmt.Fprintf(out, "== comments (%d) ==\n", len(d.Comments))
	if d.CommentsErr != nil {
		fmt.Fprintf(out, "unavailable: %v\n", d.CommentsErr)
	}
	for _, c := range d.Comments {
		fmt.Fprintf(out, "%s: %s%s\n", author(c.User, c.UserID), c.Content, reactionsText(c.Reactions))
	}
	fmt.Fprintf(out, "== reviews (%d) ==\n", len(d.Reviews))
	if d.ReviewsErr != nil {
		fmt.Fprintf(out, "unavailable: %v\n", d.ReviewsErr)
	}
	for _, r := range d.Reviews {
		fmt.Fprintf(out, "%s (%d/5): %s%s\n", author(r.User, r.UserID), r.Rating, r.Content, reactionsText(r.Reactions))
	}
	return nil
}

func author(u models.UserSummary, id string) string {
	if u.Username != "" {
		return u.Username
	}
	return id
}

// chat lists the conversations, then keeps conversationID open when one is
// given. Each typed line is sent as a message.
func chat(ctx context.Context, api messaging.InboxAPI, ch messaging.Channel, viewerID, conversationID string, in io.Reader, out io.Writer) error {
	inbox := messaging.NewInbox(api, viewerID)
	convs, err := inbox.Load(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "== conversations (%d) ==\n", len(convs))
	for _, c := range convs {
		fmt.Fprintln(out, conversationLine(c))
	}
	if conversationID == "" {
		return nil
	}

	dispose := inbox.Bind(ch)
	defer dispose()

	var mu sync.Mutex
	show := func() {
		mu.Lock()
		defer mu.Unlock()
		msgs := inbox.Messages()
		fmt.Fprintf(out, "== %s (%d) ==\n", conversationID, len(msgs))
		for _, m := range msgs {
			fmt.Fprintln(out, messageLine(m, viewerID))
		}
	}
	// registered after Bind so the inbox has merged the event first
	for _, event := range []string{models.EventMessageNew, models.EventMessageDeleted} {
		defer ch.OnEvent(event, func(json.RawMessage) { show() })()
	}

	if _, err := inbox.Open(ctx, conversationID); err != nil {
		return err
	}
	show()

	lines := readLines(ctx, in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case text, ok := <-lines:
			if !ok || text == "quit" || text == "exit" {
				return nil
			}
			if text == "" {
				continue
			}
			if _, err := inbox.Send(ctx, text); err != nil {
				fmt.Fprintf(out, "send: %v\n", err)
				continue
			}
			show()
		}
	}
}

func conversationLine(c models.Conversation) string {
	who := "unknown"
	if c.OtherUser != nil {
		who = author(*c.OtherUser, c.OtherUser.ID)
	}
	s := fmt.Sprintf("%s  %s", c.ID, who)
	if c.UnreadCount > 0 {
		s += fmt.Sprintf(" (%d unread)", c.UnreadCount)
	}
	if c.LastMessage != nil {
		s += fmt.Sprintf(": %q", c.LastMessage.Content)
	}
	return s
}

func messageLine(m models.Message, viewerID string) string {
	who := m.SenderID
	if who == viewerID {
		who = "me"
	}
	return fmt.Sprintf("%s  %s: %s", m.CreatedAt.Local().Format("15:04:05"), who, m.Content)
}
