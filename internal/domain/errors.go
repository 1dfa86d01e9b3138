package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = errors.New("domain: not found")
	ErrConflict     = errors.New("domain: conflict")
	ErrBusy         = errors.New("domain: session busy")
	ErrStoreClosed  = errors.New("domain: log store closed")
	ErrNotInstalled = errors.New("domain: executable not installed")
	ErrSpawn        = errors.New("domain: spawn failed")
)
