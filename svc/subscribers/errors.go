package subscribers

import (
	"errors"
	"fmt"

	"github.com/prytaneum/townhall-notifier/core"
)

var (
	ErrRegionNotFound      = errors.New("subscribers: region not found")
	ErrAlreadySubscribed   = errors.New("subscribers: already subscribed")
	ErrAlreadyUnsubscribed = errors.New("subscribers: already unsubscribed")
)

// Messages returned to API callers.
const (
	MsgRegionNotFound      = "Error finding region document"
	MsgAlreadySubscribed   = "Already subscribed."
	MsgAlreadyUnsubscribed = "Already unsubscribed"
)

// RegionNotFound is the client error stores return for an unknown region.
func RegionNotFound(region string) error {
	return core.NewClientError(MsgRegionNotFound, fmt.Errorf("%w: %q", ErrRegionNotFound, region))
}
