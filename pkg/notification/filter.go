package notification

import (
	"regexp"

	"github.com/cuemby/rebalancer/pkg/events"
)

// Publisher id patterns of the compute service
var (
	VersionedPublisher = regexp.MustCompile(`^nova-compute.*`)
	LegacyPublisher    = regexp.MustCompile(`^compute.*`)
)

// Filter selects the notifications an endpoint handles. All set conditions
// must hold.
type Filter struct {
	PublisherID *regexp.Regexp
	EventType   string
	Payload     func(*events.Notification) bool
}

// Match reports whether n passes the filter
func (f Filter) Match(n *events.Notification) bool {
	if f.EventType != "" && n.EventType != f.EventType {
		return false
	}
	if f.PublisherID != nil && !f.PublisherID.MatchString(n.PublisherID) {
		return false
	}
	if f.Payload != nil && !f.Payload(n) {
		return false
	}
	return true
}
