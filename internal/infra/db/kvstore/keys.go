// Package kvstore implements the ledger, pool and usage repositories on top
// of any repository.KV.
//
// Key layout:
//
//	code:<code>                   Activation (authoritative)
//	device:<id>[:<bundleId>]      Activation (mirror)
//	allowed-codes                 pool snapshot {"monthly":[...],"yearly":[...]}
//	allowed-codes:last            unix seconds of the last remote refresh
//	allowed-codes:removed         administratively removed codes
//	usage:<code>                  UsageRecord
package kvstore

import (
	"errors"
	"fmt"

	"license-activation/internal/domain"
)

const (
	prefixCode   = "code:"
	prefixDevice = "device:"
	prefixUsage  = "usage:"

	keyAllowedCodes   = "allowed-codes"
	keyAllowedLast    = "allowed-codes:last"
	keyAllowedRemoved = "allowed-codes:removed"
)

func codeKey(code string) string { return prefixCode + code }

func deviceKey(deviceID, bundleID string) string {
	if bundleID == "" {
		return prefixDevice + deviceID
	}
	return prefixDevice + deviceID + ":" + bundleID
}

func usageKey(code string) string { return prefixUsage + code }

// storeErr tags unexpected store errors; absence passes through untouched.
func storeErr(op, key string, err error) error {
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", domain.ErrStoreFailure, op, key, err)
}
