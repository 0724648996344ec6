package service

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// NewOrderNumber builds ORD_YYYYMMDD_HHMMSS_NNNN from the UTC time and a random suffix.
func NewOrderNumber(t time.Time) string {
	return fmt.Sprintf("ORD_%s_%04d", t.UTC().Format("20060102_150405"), rand.IntN(10000))
}
