package util

// TransferTuning holds copy settings adjusted to the filesystems involved
type TransferTuning struct {
	Concurrency int
	BufferSize  int
	Retry       *RetryConfig
	Mount       *Mount // first network mount found, nil if all local
}

const (
	networkMaxConcurrency = 4
	networkBufferSize     = 256 * 1024
)

// TuneForPaths adjusts concurrency, buffer size and retries for paths on
// network mounts. forced overrides detection when non-nil.
func TuneForPaths(baseConcurrency int, forced *bool, paths ...string) TransferTuning {
	t := TransferTuning{Concurrency: baseConcurrency}

	network := false
	if forced != nil {
		network = *forced
	} else {
		for _, p := range paths {
			if p == "" {
				continue
			}
			if m, err := MountFor(p); err == nil && m.Network {
				network, t.Mount = true, m
				break
			}
		}
	}
	if !network {
		return t
	}

	switch {
	case t.Concurrency <= 0:
		t.Concurrency = 2
	case t.Concurrency > networkMaxConcurrency:
		t.Concurrency = networkMaxConcurrency
	}
	t.BufferSize = networkBufferSize
	t.Retry = NetworkRetryConfig()
	if t.Mount != nil {
		DebugLog("Tuning transfer for %s", t.Mount)
	}
	return t
}
