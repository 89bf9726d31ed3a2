package api

import "fmt"

// SeaTalkMessage is the body of a SeaTalk group webhook call.  Only
// text messages are sent.
type SeaTalkMessage struct {
	Tag  string      `json:"tag"`
	Text SeaTalkText `json:"text"`
}

// SeaTalkText is the payload of a text message.
type SeaTalkText struct {
	Content string `json:"content"`
	AtAll   bool   `json:"at_all"`
}

// NewDashboardUpdated returns the message announcing a dashboard update
// with the given archive name and number of filtered rows.
func NewDashboardUpdated(fileName string, rows int) *SeaTalkMessage {
	return &SeaTalkMessage{
		Tag: "text",
		Text: SeaTalkText{
			Content: fmt.Sprintf("✅ Dashboard Updated!\nFile: %s\nFiltered Rows: %d", fileName, rows),
			AtAll:   false,
		},
	}
}
