// Package metrics holds the Prometheus counters for authentication events.
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "domainx"

type Metrics struct {
	loginFailures        *prometheus.CounterVec
	lockouts             *prometheus.CounterVec
	logins               *prometheus.CounterVec
	registrations        *prometheus.CounterVec
	resetsIssued         *prometheus.CounterVec
	resetsCompleted      *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      name,
		Help:      help,
	}, labels)
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		loginFailures:        counter("login_failures_total", "Failed login attempts by account kind and reason.", "kind", "reason"),
		lockouts:             counter("lockouts_total", "Accounts locked after repeated password failures.", "kind"),
		logins:               counter("logins_total", "Successful logins.", "kind"),
		registrations:        counter("registrations_total", "Accounts registered.", "kind"),
		resetsIssued:         counter("password_resets_issued_total", "Password reset tokens issued.", "kind"),
		resetsCompleted:      counter("password_resets_completed_total", "Password resets completed.", "kind"),
		notificationFailures: counter("notification_failures_total", "Emails that could not be delivered.", "template"),
	}

	for _, c := range []prometheus.Collector{
		m.loginFailures, m.lockouts, m.logins, m.registrations,
		m.resetsIssued, m.resetsCompleted, m.notificationFailures,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) LoginFailed(kind, reason string) {
	if m == nil {
		return
	}
	m.loginFailures.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) Locked(kind string) {
	if m == nil {
		return
	}
	m.lockouts.WithLabelValues(kind).Inc()
}

func (m *Metrics) LoggedIn(kind string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(kind).Inc()
}

func (m *Metrics) Registered(kind string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(kind).Inc()
}

func (m *Metrics) ResetIssued(kind string) {
	if m == nil {
		return
	}
	m.resetsIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) ResetCompleted(kind string) {
	if m == nil {
		return
	}
	m.resetsCompleted.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotificationFailed(template string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(template).Inc()
}
