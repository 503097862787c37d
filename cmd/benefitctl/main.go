// Command benefitctl is the operator CLI: it computes benefit cycles, seeds
// the card catalog and runs the daily jobs by hand.
//
// Examples:
//
//	benefitctl period --frequency QUARTERLY --date 2024-05-15 --lang en
//	benefitctl seed --db benefits.db --catalog cards.yaml
//	benefitctl check-expiring --db benefits.db
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
