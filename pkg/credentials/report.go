package credentials

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"
)

const reportTimeLayout = "2006-01-02 15:04:05"

// Report writes the login history and tracked uploads as aligned text.
func (s *Store) Report(w io.Writer) error {
	s.mu.Lock()
	users := make([]string, 0, len(s.history))
	for u := range s.history {
		users = append(users, u)
	}
	sort.Strings(users)

	history := make(map[string][]Session, len(s.history))
	for _, u := range users {
		history[u] = append([]Session(nil), s.history[u]...)
	}
	online := make(map[string]bool, len(s.online))
	for u := range s.online {
		online[u] = true
	}
	uploads := append([]Upload(nil), s.uploads...)
	s.mu.Unlock()

	perUser := make(map[string]int)
	for _, up := range uploads {
		perUser[up.User]++
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER REPORT")
	fmt.Fprintf(tw, "users: %d\tuploads: %d\n\n", len(users), len(uploads))

	fmt.Fprintln(tw, "USER\tSTATUS\tLOGINS\tLAST LOGIN\tLAST LOGOUT\tUPLOADS")
	for _, u := range users {
		sessions := history[u]
		last := sessions[len(sessions)-1]
		status := "offline"
		if online[u] {
			status = "online"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\n",
			u, status, len(sessions), formatTime(last.LoginAt), formatTime(last.LogoutAt), perUser[u])
	}

	if len(uploads) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "USER\tSOURCE\tDESTINATION\tTIME")
		for _, up := range uploads {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", up.User, up.Source, up.Destination, formatTime(up.At))
		}
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(reportTimeLayout)
}
