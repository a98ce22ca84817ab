package value

import "golang.org/x/text/unicode/norm"

// Key renders v as a reconciliation key for repeat items.
//
// Keys are NFC-normalized so two strings that render identically (composed
// vs decomposed accents) produce the same key and therefore reuse the same
// subtree across reconciliations.
func Key(v Value) string {
	return norm.NFC.String(Format(v))
}
