package api

import (
	"encoding/json"
	"testing"
)

func TestNewDashboardUpdated(t *testing.T) {
	b, err := json.Marshal(NewDashboardUpdated("report.zip", 3))
	if err != nil {
		t.Fatalf("json.Marshal() = %v", err)
	}
	want := `{"tag":"text","text":{"content":"✅ Dashboard Updated!\nFile: report.zip\nFiltered Rows: 3","at_all":false}}`
	if string(b) != want {
		t.Fatalf("json.Marshal() = %s, want %s", b, want)
	}
}
