package model

import "github.com/m-mizutani/goerr/v2"

var (
	ErrEmptyQuestion    = goerr.New("question is empty")
	ErrDispatchInFlight = goerr.New("another question is still being answered")
	ErrNothingToExport  = goerr.New("conversation has nothing to export yet")
	ErrExportInFlight   = goerr.New("another export is in progress")
	ErrExportFailed     = goerr.New("failed to export conversation")
	ErrUnexpectedStatus = goerr.New("unexpected status code")
)
