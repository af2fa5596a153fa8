package errcode_test

import (
	"errors"
	"testing"

	"github.com/tobozo/go-targz/errcode"
)

func TestNewCarriesCode(t *testing.T) {
	e := errcode.New(errcode.ChecksumError)
	if !e.IsCode(errcode.ChecksumError) {
		t.Fatal("expected IsCode to match the constructed code")
	}
	if e.IsCode(errcode.DataError) {
		t.Fatal("did not expect IsCode to match an unrelated code")
	}
}

func TestWrapPreservesParent(t *testing.T) {
	parent := errors.New("short read")
	e := errcode.Wrap(errcode.StreamError, parent)

	if !errors.Is(e, parent) {
		t.Fatal("expected errors.Is to see through to the parent")
	}
	if e.Unwrap() != parent {
		t.Fatal("expected Unwrap to return the parent error")
	}
}

func TestIsCodeHelperWalksChain(t *testing.T) {
	inner := errcode.New(errcode.DataError)
	outer := errcode.Wrap(errcode.GzReadFail, inner)

	if !errcode.IsCode(outer, errcode.DataError) {
		t.Fatal("expected IsCode helper to find the inner code")
	}
	if errcode.IsCode(outer, errcode.ChecksumError) {
		t.Fatal("did not expect a match for an unrelated code")
	}
}
