// This tool is a part of e2e helper programs and creates a report
// archive holding CSV files for zipsheet to process.
package main

import (
	"archive/zip"
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

var (
	localDir = flag.String("local-dir", "../e2e/local/exports", "local directory in which the archive is created")
	name     = flag.String("name", "", "archive name, report-<timestamp>.zip if empty")
	nFiles   = flag.Int("files", 3, "number of CSV files in the archive")
	nRows    = flag.Int("rows", 1000, "number of rows per CSV file")
	soc5     = flag.Int("soc5-percent", 30, "percentage of rows received by SOC 5")
	bom      = flag.Bool("bom", false, "prefix every CSV file with a byte order mark")
	verbose  = flag.Bool("verbose", false, "enable verbose mode")

	header = []string{
		"TO Number", "SPX Tracking Number", "Receiver Name", "TO Order Quantity", "Operator",
		"Create Time", "Complete Time", "Remark", "Receive Status", "Staging Area ID",
		"Receiver type", "Current Station",
	}
	stations = []string{"SOC 1", "SOC 2", "SOC 4", "SOC 7"}
)

func main() {
	flag.Parse()
	if *nFiles < 0 || *nRows < 0 || *soc5 < 0 || *soc5 > 100 {
		fmt.Println("files and rows must not be negative, soc5-percent must be in [0, 100]") //nolint
		os.Exit(1)
	}
	if *name == "" {
		*name = fmt.Sprintf("report-%s.zip", time.Now().UTC().Format("20060102T150405Z"))
	}
	if err := os.MkdirAll(*localDir, 0o755); err != nil {
		panic(err)
	}
	path := filepath.Join(*localDir, *name)
	kept := createArchive(path)
	fmt.Printf("created %v: %d rows, %d for SOC 5\n", path, *nFiles**nRows, kept) //nolint
}

// createArchive writes the archive and returns the number of rows that
// the soc5 predicate accepts.
func createArchive(path string) int {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	rnd := rand.New(rand.NewSource(int64(os.Getpid()))) //nolint:gosec
	kept := 0
	for i := 0; i < *nFiles; i++ {
		entry := fmt.Sprintf("export/part-%03d.csv", i)
		if *verbose {
			fmt.Printf("creating %v\n", entry) //nolint
		}
		w, err := zw.Create(entry)
		if err != nil {
			panic(err)
		}
		if *bom {
			if _, err := w.Write([]byte("\ufeff")); err != nil {
				panic(err)
			}
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			panic(err)
		}
		for j := 0; j < *nRows; j++ {
			station := stations[rnd.Intn(len(stations))]
			if rnd.Intn(100) < *soc5 {
				station = "SOC 5"
				kept++
			}
			created := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC).Add(time.Duration(i**nRows+j) * time.Second)
			record := []string{
				fmt.Sprintf("TO%06d", i**nRows+j),
				fmt.Sprintf("SPXID%08d", rnd.Intn(100000000)),
				fmt.Sprintf("Receiver %d", rnd.Intn(100)),
				fmt.Sprintf("%d", 1+rnd.Intn(20)),
				fmt.Sprintf("op%d", rnd.Intn(5)),
				created.Format("2006-01-02 15:04:05"),
				created.Add(time.Hour).Format("2006-01-02 15:04:05"),
				"",
				"Received",
				fmt.Sprintf("SA-%02d", rnd.Intn(40)),
				"Station",
				station,
			}
			if err := cw.Write(record); err != nil {
				panic(err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return kept
}
