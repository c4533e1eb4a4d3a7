// Package metrics declares the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamhub",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route template, method and status code.",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "teamhub",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route template and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	AuthzDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamhub",
		Name:      "authz_decisions_total",
		Help:      "Authorization gate decisions by action and outcome.",
	}, []string{"action", "outcome"})

	InvitationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamhub",
		Name:      "invitation_transitions_total",
		Help:      "Invitation state transitions by resulting status.",
	}, []string{"status"})

	InvitationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "teamhub",
		Name:      "invitations_expired_total",
		Help:      "Pending invitations flipped to expired by the sweeper.",
	})

	TeamsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamhub",
		Name:      "team_deletions_total",
		Help:      "Cascade team deletions by outcome.",
	}, []string{"outcome"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamhub",
		Name:      "rate_limited_requests_total",
		Help:      "Requests rejected by the per-user rate limiter.",
	}, []string{"route"})
)
