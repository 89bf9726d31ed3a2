// This tool is a part of e2e helper programs and verifies that:
//
//  1. The data tab of a local workbook starts with the expected header.
//  2. Every data row has the same number of cells as the header.
//  3. The handshake cell holds the completion value.
//  4. If -rows is specified, the data tab holds exactly that many rows.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/spxops/zipsheet/internal/publish"
)

var (
	dataTab       = flag.String("data-tab", "Data", "tab holding the data")
	handshakeTab  = flag.String("handshake-tab", "", "tab holding the handshake cell, not checked if empty")
	handshakeCell = flag.String("handshake-cell", "A1", "handshake cell address")
	header        = flag.String("header", "TO Number,SPX Tracking Number,Receiver Name,TO Order Quantity,Operator,Create Time,Complete Time,Remark,Receive Status,Staging Area ID", "comma separated expected header")
	wantRows      = flag.Int("rows", -1, "expected number of data rows, not checked if negative")
	verbose       = flag.Bool("verbose", false, "enable verbose mode")
)

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		log.Panicf("usage: check_workbook [flags] <workbook.xlsx>...")
	}
	for _, arg := range flag.Args() {
		checkWorkbook(arg)
	}
}

func checkWorkbook(path string) {
	if *verbose {
		fmt.Printf("checking %v\n", path) //nolint:forbidigo
	}
	// 1. Verify we can open the workbook and it has the expected header.
	f, err := excelize.OpenFile(path)
	if err != nil {
		log.Panicf("failed to open %v: %v", path, err)
	}
	defer f.Close()
	rows, err := f.GetRows(*dataTab)
	if err != nil {
		log.Panicf("%v: failed to read %q: %v", path, *dataTab, err)
	}
	if len(rows) == 0 {
		log.Panicf("%v: %q has no header", path, *dataTab)
	}
	if got := strings.Join(rows[0], ","); got != *header {
		log.Panicf("%v: header is %q, want %q", path, got, *header)
	}

	// 2. Verify no row is wider than the header.  Trailing empty cells
	// are not returned so rows may be narrower.
	for i, row := range rows[1:] {
		if len(row) > len(rows[0]) {
			log.Panicf("%v: row %d has %d cells, header has %d", path, i+2, len(row), len(rows[0]))
		}
	}

	// 3. Verify the handshake.
	if *handshakeTab != "" {
		value, err := f.GetCellValue(*handshakeTab, *handshakeCell)
		if err != nil {
			log.Panicf("%v: failed to read handshake: %v", path, err)
		}
		if value != publish.Completed {
			log.Panicf("%v: handshake is %q, want %q", path, value, publish.Completed)
		}
	}

	// 4. Verify the number of rows.
	if *wantRows >= 0 && len(rows)-1 != *wantRows {
		log.Panicf("%v: %d data rows, want %d", path, len(rows)-1, *wantRows)
	}
	fmt.Printf("%v: ok, %d data rows\n", path, len(rows)-1) //nolint:forbidigo
}
