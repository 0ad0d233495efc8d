package bridge

// FeeEstimator quotes the channel fee required to deliver a payload to
// a destination ledger. The real quote comes from the relayer network;
// deployments without one use the flat estimator.
type FeeEstimator interface {
	// EstimateFee returns the minimum fee for delivering payloadLen
	// bytes to the given destination chain tag.
	EstimateFee(dstChainTag uint32, payloadLen int) uint64
}

// FlatFeeEstimator charges a base fee plus a per-byte rate, mirroring
// how transaction fees scale with encoded size.
type FlatFeeEstimator struct {
	Base    uint64
	PerByte uint64
}

// EstimateFee returns Base + PerByte*payloadLen.
func (f FlatFeeEstimator) EstimateFee(dstChainTag uint32, payloadLen int) uint64 {
	return f.Base + f.PerByte*uint64(payloadLen)
}
