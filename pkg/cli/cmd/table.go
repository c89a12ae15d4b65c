package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
	"github.com/rzbill/tokenvault/pkg/cli/format"
	"github.com/rzbill/tokenvault/pkg/types"
)

// tokenRow is a decoded token ready for display.
type tokenRow struct {
	Token   string              `yaml:"token"`
	Payload *types.TokenPayload `yaml:"payload"`
}

// ResourceTable renders tokenctl listings with pterm.
type ResourceTable struct {
	Headers     []string
	ShowHeaders bool
	ShowFull    bool
	MaxWidth    int

	tableRenderer *pterm.TablePrinter
	now           func() time.Time
}

// NewResourceTable creates a new resource table with default configuration
func NewResourceTable() *ResourceTable {
	table := pterm.DefaultTable.WithHasHeader(true)

	// Customize the header style to use bold cyan
	headerStyle := pterm.NewStyle(pterm.FgCyan, pterm.Bold)
	table = table.WithHeaderStyle(headerStyle)

	return &ResourceTable{
		ShowHeaders:   true,
		tableRenderer: table,
		MaxWidth:      40,
		now:           time.Now,
	}
}

// RenderTokens writes a table of tokens to w.
func (t *ResourceTable) RenderTokens(w io.Writer, rows []tokenRow) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No tokens found")
		return nil
	}

	headers := t.Headers
	if len(headers) == 0 {
		headers = []string{"TYPE", "ISSUED", "EXPIRES", "REMAINING", "TOKEN"}
	}

	data := [][]string{headers}
	now := t.now()
	for _, row := range rows {
		kind := "user"
		if row.Payload.Application {
			kind = "application"
		}
		token := row.Token
		if !t.ShowFull {
			token = format.Truncate(token, t.MaxWidth)
		}
		data = append(data, []string{
			kind,
			format.Timestamp(row.Payload.IssuedAt),
			format.Timestamp(row.Payload.ExpiresAt),
			format.Remaining(row.Payload.ExpiresAt, now),
			token,
		})
	}
	return t.render(w, data)
}

// RenderUsers writes a single-column table of usernames to w.
func (t *ResourceTable) RenderUsers(w io.Writer, users []string) error {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users found")
		return nil
	}
	data := [][]string{{"USER"}}
	for _, user := range users {
		data = append(data, []string{user})
	}
	return t.render(w, data)
}

func (t *ResourceTable) render(w io.Writer, data [][]string) error {
	table := t.tableRenderer.WithHasHeader(t.ShowHeaders)
	if !t.ShowHeaders {
		data = data[1:]
	}
	out, err := table.WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
