package model

import (
	"fmt"
	"time"
)

// ProductTimeLayout is the layout of the production timestamp appended to product names
const ProductTimeLayout = "20060102150405"

// ProductName builds the distributed product name from a sensor prefix and the
// time processing finished.
func ProductName(prefix string, produced time.Time) string {
	return fmt.Sprintf("%s-SC%s", prefix, produced.Format(ProductTimeLayout))
}

// StatisticsProductName is the product name used for plot requests
func StatisticsProductName(orderID string) string {
	return orderID + "-statistics"
}
