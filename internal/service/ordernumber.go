package service

import (
	"fmt"
	"math/rand"
	"time"
)

// NewOrderNumber formats a human readable order number as
// ORD-<YYYYMMDD>-<4 digits>. The suffix is not unique on its own; the store
// rejects collisions.
func NewOrderNumber(now time.Time, intn func(n int) int) string {
	return fmt.Sprintf("ORD-%s-%04d", now.UTC().Format("20060102"), intn(10000))
}

func randomOrderNumber() string {
	return NewOrderNumber(time.Now(), rand.Intn)
}
