// Package main implements zipsheet.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/m-lab/go/flagx"

	"github.com/spxops/zipsheet/internal/archive"
	"github.com/spxops/zipsheet/internal/gcs"
	"github.com/spxops/zipsheet/internal/pipeline"
	"github.com/spxops/zipsheet/internal/publish"
	"github.com/spxops/zipsheet/internal/retry"
	"github.com/spxops/zipsheet/internal/seatalk"
	"github.com/spxops/zipsheet/internal/sheets"
	"github.com/spxops/zipsheet/internal/source"
	"github.com/spxops/zipsheet/internal/table"
	"github.com/spxops/zipsheet/internal/testhelper"
	"github.com/spxops/zipsheet/internal/workbook"
)

var (
	// Flags related to the source folder.
	folderID     string
	sourceKind   string
	nameContains string
	chunkSize    int

	// Flags related to the archive and its filtering.
	delimiter       string
	strictHeaders   bool
	predicatePreset string
	matches         flagx.StringArray
	columns         flagx.StringArray

	// Flags related to the destination spreadsheet.
	sheetID          string
	localWorkbook    string
	dataTab          string
	handshakeTab     string
	handshakeCell    string
	batchRows        int
	valueInputOption string

	// Flags related to credentials and notifications.
	credentials     string
	credentialsFile flagx.File
	webhook         string
	pushgatewayURL  string
	jobName         string

	// Flags related to retries and timeouts.
	retries         int
	retryInitial    time.Duration
	retryMax        time.Duration
	downloadTimeout time.Duration
	uploadTimeout   time.Duration
	notifyTimeout   time.Duration

	// Flags related to program's execution.
	verbose bool

	// Values derived from the flags.
	predicate table.All

	// The columns written to the spreadsheet, in order.
	defaultColumns = []string{
		"TO Number",
		"SPX Tracking Number",
		"Receiver Name",
		"TO Order Quantity",
		"Operator",
		"Create Time",
		"Complete Time",
		"Remark",
		"Receive Status",
		"Staging Area ID",
	}

	// Errors related to command line parsing and validation.
	errExtraArgs     = errors.New("extra arguments on the command line")
	errNoFolder      = errors.New("must specify folder-id")
	errNoSheet       = errors.New("must specify sheet-id or local-workbook")
	errNoWebhook     = errors.New("must specify seatalk-webhook")
	errNoCredentials = errors.New("must specify google-service-account-json or google-service-account-file")
	errCredentials   = errors.New("service account key is not valid JSON")
	errTwoKeys       = errors.New("cannot specify both google-service-account-json and google-service-account-file")
	errSource        = errors.New("source must be drive, gcs, or disk")
	errDelimiter     = errors.New("delimiter must be a single character")
	errBatchRows     = errors.New("batch-rows must be positive")
	errRetries       = errors.New("retries must be at least 1")
	errNoColumns     = errors.New("must specify at least one column")
)

func initFlags() {
	// Flags related to the source folder.
	flag.StringVar(&folderID, "folder-id", "", "required - folder holding the archives (Drive folder id, <bucket>/<prefix>, or directory)")
	flag.StringVar(&sourceKind, "source", "drive", "storage holding the folder: drive, gcs, or disk")
	flag.StringVar(&nameContains, "name-contains", ".zip", "substring archive names must contain")
	flag.IntVar(&chunkSize, "chunk-size", source.DefaultChunkSize, "download chunk size in bytes")

	// Flags related to the archive and its filtering.
	flag.StringVar(&delimiter, "delimiter", ",", "CSV field delimiter")
	flag.BoolVar(&strictHeaders, "strict-headers", false, "fail if the CSV files of an archive have different headers")
	flag.StringVar(&predicatePreset, "predicate", "soc5", "named row predicate (soc5, status-success, all), empty for none")
	matches = flagx.StringArray{}
	columns = flagx.StringArray{}
	flag.Var(&matches, "match", "additional row condition <column>==<value> or <column>=~<value> (case-insensitive), prefix ? if optional")
	flag.Var(&columns, "columns", "column written to the spreadsheet, in order (default the standard ten columns)")

	// Flags related to the destination spreadsheet.
	flag.StringVar(&sheetID, "sheet-id", "", "required unless local-workbook is set - spreadsheet key")
	flag.StringVar(&localWorkbook, "local-workbook", "", "write to this .xlsx file instead of Google Sheets")
	flag.StringVar(&dataTab, "data-tab", "", "tab receiving the data, first tab if empty")
	flag.StringVar(&handshakeTab, "handshake-tab", "", "tab holding the handshake cell, no handshake if empty")
	flag.StringVar(&handshakeCell, "handshake-cell", "A1", "handshake cell address")
	flag.IntVar(&batchRows, "batch-rows", publish.DefaultBatchRows, "maximum rows per spreadsheet write")
	flag.StringVar(&valueInputOption, "value-input-option", "RAW", "how Google Sheets interprets values: RAW or USER_ENTERED")

	// Flags related to credentials and notifications.
	credentialsFile = flagx.File{}
	flag.StringVar(&credentials, "google-service-account-json", "", "service account key, specified directly or via GOOGLE_SERVICE_ACCOUNT_JSON env variable")
	flag.Var(&credentialsFile, "google-service-account-file", "file holding the service account key")
	flag.StringVar(&webhook, "seatalk-webhook", "", "required - SeaTalk group webhook URL")
	flag.StringVar(&pushgatewayURL, "pushgateway-url", "", "Prometheus Pushgateway URL, no push if empty")
	flag.StringVar(&jobName, "job-name", "zipsheet", "Pushgateway job name")

	// Flags related to retries and timeouts.
	flag.IntVar(&retries, "retries", 3, "attempts of each remote call")
	flag.DurationVar(&retryInitial, "retry-initial", time.Second, "first pause between attempts")
	flag.DurationVar(&retryMax, "retry-max", 30*time.Second, "maximum pause between attempts")
	flag.DurationVar(&downloadTimeout, "download-timeout", 10*time.Minute, "timeout of an archive download attempt")
	flag.DurationVar(&uploadTimeout, "upload-timeout", 2*time.Minute, "timeout of a listing or spreadsheet call attempt")
	flag.DurationVar(&notifyTimeout, "notify-timeout", seatalk.DefaultTimeout, "timeout of the webhook call")

	// Flags related to program's execution.
	flag.BoolVar(&verbose, "verbose", false, "enable verbose mode")
}

// parseAndValidateCLI parses and validates the command line.
func parseAndValidateCLI() error {
	initFlags()
	flag.Parse()
	if flag.NArg() != 0 {
		return errExtraArgs
	}

	// Now, check if some flags were set in the environment instead
	// of on the command line.
	if err := flagx.ArgsFromEnv(flag.CommandLine); err != nil {
		return fmt.Errorf("failed to get args from the environment: %w", err)
	}

	// Enable verbose mode in all packages as soon as the flags are
	// parsed because they may be called for during argument validation.
	if verbose {
		archive.Verbose(testhelper.VLogf)
		gcs.Verbose(testhelper.VLogf)
		pipeline.Verbose(testhelper.VLogf)
		publish.Verbose(testhelper.VLogf)
		retry.Verbose(testhelper.VLogf)
		seatalk.Verbose(testhelper.VLogf)
		sheets.Verbose(testhelper.VLogf)
		source.Verbose(testhelper.VLogf)
		table.Verbose(testhelper.VLogf)
		workbook.Verbose(testhelper.VLogf)
	}

	if len(columns) == 0 {
		columns = append(flagx.StringArray{}, defaultColumns...)
	}
	if err := validateRequired(); err != nil {
		return err
	}
	if utf8.RuneCountInString(delimiter) != 1 {
		return errDelimiter
	}
	if batchRows <= 0 {
		return errBatchRows
	}
	if retries < 1 {
		return errRetries
	}
	for _, c := range columns {
		if c == "" {
			return errNoColumns
		}
	}
	var err error
	if predicate, err = table.NewPredicate(predicatePreset, matches); err != nil {
		return fmt.Errorf("invalid predicate: %w", err)
	}
	return nil
}

// validateRequired validates the flags that must always be specified
// and the ones required by the selected source and destination.
func validateRequired() error {
	if folderID == "" {
		return errNoFolder
	}
	switch sourceKind {
	case "drive", "gcs", "disk":
	default:
		return fmt.Errorf("%q: %w", sourceKind, errSource)
	}
	if sheetID == "" && localWorkbook == "" {
		return errNoSheet
	}
	if webhook == "" {
		return errNoWebhook
	}
	if credentials != "" && credentialsFile.Content() != "" {
		return errTwoKeys
	}
	// Google Cloud Storage falls back to application default
	// credentials.
	key := serviceAccountKey()
	if key == "" {
		if sourceKind == "drive" || localWorkbook == "" {
			return errNoCredentials
		}
		return nil
	}
	if !json.Valid([]byte(key)) {
		return errCredentials
	}
	return nil
}

// serviceAccountKey returns the service account key specified either
// directly or via a file, empty if none.
func serviceAccountKey() string {
	if credentials != "" {
		return credentials
	}
	return credentialsFile.Content()
}

// policy returns the retry policy of calls with the given attempt
// timeout.
func policy(timeout time.Duration) retry.Policy {
	return retry.Policy{Attempts: retries, Timeout: timeout, Initial: retryInitial, Max: retryMax}
}
