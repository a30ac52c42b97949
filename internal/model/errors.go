package model

import "fmt"

// DataQualityError reports input that was structurally readable but
// analytically unusable (an empty observed point set, zero surviving
// regions). It is unit-fatal: the batch records it and moves on.
type DataQualityError struct {
	Stage  string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}
