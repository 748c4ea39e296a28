package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "chunkvault", Name: "rate_limit_allowed_total", Help: "Number of admitted requests by limiter type and endpoint class."},
		[]string{"limiter", "class"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "chunkvault", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type and endpoint class."},
		[]string{"limiter", "class"},
	)
	ChunkMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "chunkvault", Name: "chunk_mutations_total", Help: "Chunks written or tombstoned, by operation."},
		[]string{"op"},
	)
	SyncEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "chunkvault", Name: "sync_entries_total", Help: "Entries returned by sync feeds, by scope."},
		[]string{"scope"},
	)
	KeyRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "chunkvault", Name: "key_rotations_total", Help: "Wrapped keys replaced, by kind."},
		[]string{"kind"},
	)
	AuthzDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "chunkvault", Name: "authz_denied_total", Help: "Authorization denials by action."},
		[]string{"action"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ChunkMutations)
	reg.MustRegister(SyncEntries)
	reg.MustRegister(KeyRotations)
	reg.MustRegister(AuthzDenied)
}
