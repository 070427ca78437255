package services

import "errors"

var (
	// ErrPrecondition bedeutet, dass erwartete Tabellen oder Referenzdaten
	// fehlen. Der Lauf bricht ohne Teilarbeit ab.
	ErrPrecondition = errors.New("pipeline precondition failed")
	// ErrStoreUnavailable bedeutet, dass die Datenbank den Health-Check nicht besteht.
	ErrStoreUnavailable = errors.New("data store unavailable")
	// ErrBatchAborted meldet zu viele Fehlschläge in Folge beim Citation-Fetch.
	// Bereits verarbeitete Publikationen behalten ihre Ergebnisse.
	ErrBatchAborted = errors.New("citation batch aborted")
	// ErrLockHeld bedeutet, dass bereits eine andere Instanz läuft.
	ErrLockHeld = errors.New("pipeline lock held by another run")
)
