/*
main.go - Command-line voucher validation

PURPOSE:
  Validates a single voucher code against the shared database and reports
  the outcome on stdout. Built for scripting at pickup points without a
  running API server: the exit code IS the outcome, so shell scripts can
  branch without parsing output.

USAGE:
  validate [flags] <code>

COMMAND-LINE FLAGS:
  -db         SQLite database path (default: vouchers.db)
  -validator  Staff identifier recorded in the audit log
  -location   Location recorded in the audit log
  -device     Device identifier recorded in the audit log

EXIT CODES:
  0   success (voucher redeemed)
  1   not found
  2   already used
  3   expired
  4   cancelled
  5   not yet valid (before validity window)
  10  transient failure (contention or store error) - safe to retry

EXAMPLES:
  # Redeem at the front desk
  validate -validator="desk-03" -location="Grand Plaza" VOU-HOTEL-001

  # Retry loop in shell
  until validate "$CODE"; do [ $? -eq 10 ] || break; sleep 1; done

SEE ALSO:
  - voucher/engine.go: The state machine this drives
  - cmd/server/main.go: The HTTP alternative
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/warp/voucher-engine/store/sqlite"
	"github.com/warp/voucher-engine/voucher"
)

// Exit codes per outcome. Transient failures (contention, store errors)
// share code 10 so callers know a retry may succeed.
const (
	exitSuccess       = 0
	exitNotFound      = 1
	exitAlreadyUsed   = 2
	exitExpired       = 3
	exitCancelled     = 4
	exitInvalidWindow = 5
	exitTransient     = 10
)

var outcomeExitCodes = map[voucher.Outcome]int{
	voucher.OutcomeSuccess:       exitSuccess,
	voucher.OutcomeAlreadyUsed:   exitAlreadyUsed,
	voucher.OutcomeExpired:       exitExpired,
	voucher.OutcomeCancelled:     exitCancelled,
	voucher.OutcomeNotFound:      exitNotFound,
	voucher.OutcomeInvalidWindow: exitInvalidWindow,
}

func main() {
	dbPath := flag.String("db", "vouchers.db", "SQLite database path")
	validator := flag.String("validator", "", "Staff identifier for the audit log")
	location := flag.String("location", "", "Location for the audit log")
	device := flag.String("device", "", "Device identifier for the audit log")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: validate [flags] <code>")
		flag.PrintDefaults()
		os.Exit(exitTransient)
	}
	code := flag.Arg(0)

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Printf("Failed to open database: %v", err)
		os.Exit(exitTransient)
	}
	defer store.Close()

	engine := voucher.NewEngine(store, store)

	result, err := engine.Validate(context.Background(), code, voucher.Context{
		Validator: *validator,
		Location:  *location,
		Device:    *device,
	})
	if err != nil {
		if voucher.IsRetryable(err) {
			fmt.Println("contention: voucher is being validated elsewhere, retry")
		} else {
			log.Printf("Validation failed: %v", err)
		}
		os.Exit(exitTransient)
	}

	fmt.Printf("%s: %s\n", result.Outcome, result.Outcome.Message())
	if result.Voucher != nil && result.Outcome == voucher.OutcomeSuccess {
		fmt.Printf("remaining uses: %d\n", result.Voucher.RemainingUses)
	}
	os.Exit(outcomeExitCodes[result.Outcome])
}
