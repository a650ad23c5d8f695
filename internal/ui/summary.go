package ui

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// MeetingSummary is rendered after the session ends.
type MeetingSummary struct {
	MeetingID    string
	Duration     string
	Participants int
	Streams      int
}

// RenderMeetingSummary prints the end-of-meeting stats table.
func RenderMeetingSummary(title string, summary MeetingSummary) {
	t := table.NewWriter()
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter

	t.AppendRows([]table.Row{
		{"Meeting", summary.MeetingID},
		{"Duration", summary.Duration},
		{"Participants", summary.Participants},
		{"Remote streams", summary.Streams},
	})

	fmt.Println(t.Render())
}
