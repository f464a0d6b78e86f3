package interfaces

// Console provides operator-facing boot diagnostics. Output is advisory
// only: no loader decision may depend on it, and it must not be touched
// after boot services exit.
type Console interface {
	// Print writes a formatted diagnostic line
	Print(format string, args ...interface{})
}
