package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/triage-go/internal/models"
	"github.com/raphaelgruber/triage-go/internal/store"
)

var historyDelete bool

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List past triage sessions or show one transcript",
	Long: `List past triage sessions, most recent first. With a session id,
print that session's transcript. A unique id prefix is enough.

Examples:
  triage history
  triage history 2f1c9a33
  triage history 2f1c9a33 --delete`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyDelete, "delete", false, "delete the given session")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	if len(args) == 0 {
		listSessions(st)
		return nil
	}

	id, err := resolveSessionID(st, args[0])
	if err != nil {
		return err
	}

	if historyDelete {
		if err := st.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		fmt.Printf("Deleted session %.8s.\n", id)
		return nil
	}

	return showSession(st, id)
}

func listSessions(st *store.Store) {
	summaries := st.List()
	if len(summaries) == 0 {
		fmt.Println("No sessions yet. Start one with 'triage chat'.")
		return
	}

	hint := defaultChatTheme.hintStyle()
	emergency := lipgloss.NewStyle().Foreground(defaultChatTheme.High).Bold(true)

	for _, s := range summaries {
		line := fmt.Sprintf("%.8s  %s  %s",
			s.ID,
			s.Timestamp.Format("2006-01-02 15:04"),
			s.Title,
		)
		if s.Emergency {
			line += "  " + emergency.Render("[EMERGENCY]")
		}
		fmt.Println(line)
		fmt.Println(hint.Render(fmt.Sprintf("          %d messages", s.Messages)))
	}
}

func showSession(st *store.Store, id string) error {
	sess, ok := st.Get(id)
	if !ok {
		return fmt.Errorf("unknown session: %s", id)
	}

	theme := defaultChatTheme
	fmt.Printf("%s  %s\n\n", sess.Title, theme.hintStyle().Render(sess.Timestamp.Format("2006-01-02 15:04")))

	for _, msg := range sess.Messages {
		switch msg.Role {
		case models.RoleUser:
			fmt.Println(theme.userStyle().Render("You"))
		case models.RoleAssistant:
			header := theme.assistantStyle().Render("Triage")
			if msg.Urgency != "" {
				badge := strings.ToUpper(string(msg.Urgency))
				header += "  " + theme.urgencyStyle(msg.Urgency).Render("["+badge+"]")
			}
			fmt.Println(header)
		}
		fmt.Println(msg.Content)
		fmt.Println()
	}

	if sess.EmergencyLocked() {
		fmt.Println(theme.bannerStyle().Render("This session reached the emergency stage and is locked."))
	}
	return nil
}

// resolveSessionID accepts a full id or a unique prefix.
func resolveSessionID(st *store.Store, prefix string) (string, error) {
	var match string
	for _, s := range st.List() {
		if s.ID == prefix {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("ambiguous session id: %s", prefix)
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("unknown session: %s", prefix)
	}
	return match, nil
}
