package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	provisionalPrefix = "CTG"
	nonFiscalPrefix   = "NF"
	sequenceDigits    = 5
)

// ProvisionalPrefix returns the per-year prefix of provisional fiscal numbers, e.g. "CTG-2026-".
func ProvisionalPrefix(now time.Time) string {
	return fmt.Sprintf("%s-%d-", provisionalPrefix, now.UTC().Year())
}

// NonFiscalPrefix returns the per-year prefix of internal document numbers, e.g. "NF-2026-".
func NonFiscalPrefix(now time.Time) string {
	return fmt.Sprintf("%s-%d-", nonFiscalPrefix, now.UTC().Year())
}

// NextNumber returns the number following last within prefix.
// An empty or foreign last value restarts the sequence at 1.
func NextNumber(prefix, last string) string {
	seq := 0
	if strings.HasPrefix(last, prefix) {
		if n, err := strconv.Atoi(strings.TrimPrefix(last, prefix)); err == nil && n > 0 {
			seq = n
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, sequenceDigits, seq+1)
}
