package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passport_nfc_sessions_created_total",
		Help: "Number of NFC scan sessions created.",
	})

	scanningNotifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passport_nfc_scanning_notifications_total",
		Help: "Number of scanning-started notifications received.",
	})

	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passport_nfc_submissions_total",
		Help: "Passport data submissions by outcome.",
	}, []string{"result"})
)
