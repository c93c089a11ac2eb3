// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package likelihoods

import (
	"fmt"

	"github.com/gomlx/gsa/pkg/core/shapes"
)

// BroadcastMode selects how the noise covariance is added to the predictive variance of the latent values,
// according to the rank of the latter.
type BroadcastMode int

const (
	// PerDatapoint is used for Fvar of rank 2, [N, L]: a marginal variance per datapoint and output.
	// Only the diagonal of the noise covariance is added, reshaped to [1, L].
	PerDatapoint BroadcastMode = iota

	// PerBatch is used for Fvar of rank 3, [N, L, L]: a full covariance per datapoint. The noise covariance
	// is added reshaped to [1, L, L].
	PerBatch

	// PerBatchPerSample is used for Fvar of rank 4, [S, N, L, L]: a full covariance per sample and datapoint.
	// The noise covariance is added reshaped to [1, 1, L, L].
	PerBatchPerSample
)

// BroadcastModeForRank returns the BroadcastMode for an Fvar of the given rank.
// Only ranks 2, 3 and 4 are supported: other ranks return an error wrapping shapes.ErrShape.
func BroadcastModeForRank(rank int) (BroadcastMode, error) {
	switch rank {
	case 2:
		return PerDatapoint, nil
	case 3:
		return PerBatch, nil
	case 4:
		return PerBatchPerSample, nil
	}
	return 0, shapes.Errorf("Fvar has rank %d, when it should have rank 2, 3 or 4", rank)
}

// String implements fmt.Stringer.
func (m BroadcastMode) String() string {
	switch m {
	case PerDatapoint:
		return "PerDatapoint"
	case PerBatch:
		return "PerBatch"
	case PerBatchPerSample:
		return "PerBatchPerSample"
	}
	return fmt.Sprintf("BroadcastMode(%d)", int(m))
}
