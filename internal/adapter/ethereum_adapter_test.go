package adapter

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"
)

func TestValidateAddress(t *testing.T) {
	valid := []string{
		"0x1234567890abcdef1234567890abcdef12345678",
		"0xABCDEF1234567890ABCDEF1234567890ABCDEF12",
	}
	for _, addr := range valid {
		if !ValidateAddress(addr) {
			t.Errorf("Expected %s to be valid", addr)
		}
	}

	invalid := []string{
		"",
		"0x",
		"1234567890abcdef1234567890abcdef12345678",
		"0x1234567890abcdef1234567890abcdef1234567",
		"0x1234567890abcdef1234567890abcdef123456789",
		"0xg234567890abcdef1234567890abcdef12345678",
	}
	for _, addr := range invalid {
		if ValidateAddress(addr) {
			t.Errorf("Expected %s to be invalid", addr)
		}
	}
}

func TestViewSelectors(t *testing.T) {
	// 4-byte selectors of the ERC-20 metadata view functions
	expected := map[ViewFunction]string{
		ViewName:        "06fdde03",
		ViewSymbol:      "95d89b41",
		ViewDecimals:    "313ce567",
		ViewTotalSupply: "18160ddd",
	}

	for fn, want := range expected {
		selector, ok := viewSelectors[fn]
		if !ok {
			t.Errorf("Expected selector for %s to be allow-listed", fn)
			continue
		}
		if got := hex.EncodeToString(selector); got != want {
			t.Errorf("Expected selector %s for %s, got %s", want, fn, got)
		}
	}

	if _, ok := viewSelectors[ViewFunction("transfer")]; ok {
		t.Error("State-changing functions must not be allow-listed")
	}
}

func TestIsTransient(t *testing.T) {
	transient := []error{
		fmt.Errorf("429 Too Many Requests"),
		fmt.Errorf("read tcp: i/o timeout"),
		fmt.Errorf("connection refused"),
		fmt.Errorf("connection reset by peer"),
		fmt.Errorf("context deadline exceeded"),
		context.DeadlineExceeded,
	}
	for _, err := range transient {
		if !IsTransient(err) {
			t.Errorf("Expected %v to be transient", err)
		}
	}

	permanent := []error{
		nil,
		ErrBlockNotFound,
		ErrInvalidAddress,
		fmt.Errorf("execution reverted"),
	}
	for _, err := range permanent {
		if IsTransient(err) {
			t.Errorf("Expected %v not to be transient", err)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(ErrBlockNotFound) {
		t.Error("Expected ErrBlockNotFound to be not-found")
	}
	if !IsNotFound(ErrTransactionNotFound) {
		t.Error("Expected ErrTransactionNotFound to be not-found")
	}
	if !IsNotFound(NewAdapterError("ethereum", "BlockByNumber", ErrBlockNotFound, nil)) {
		t.Error("Expected wrapped not-found to be detected")
	}
	if IsNotFound(fmt.Errorf("boom")) {
		t.Error("Expected arbitrary errors not to be not-found")
	}
}
