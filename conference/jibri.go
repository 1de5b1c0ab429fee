package conference

import (
	"context"

	"github.com/jiconf/focus/focuserr"
	"github.com/jiconf/focus/jibri"
)

// StartJibri handles a Jibri start-request on behalf of requesterID,
// enforcing moderator gating (spec.md §8 invariant 9) before touching any
// Jibri session state.
func (c *Conference) StartJibri(ctx context.Context, requesterID string, req jibri.StartRequest) (*jibri.Session, error) {
	c.mu.Lock()
	requester, ok := c.participants[requesterID]
	c.mu.Unlock()
	if !ok {
		return nil, focuserr.New(focuserr.ItemNotFound, "no such participant")
	}
	req.IsModerator = requester.jibriRequesterOK()
	return c.jibriDisp.Start(ctx, req)
}

// StopJibri handles a Jibri stop-request on behalf of requesterID.
func (c *Conference) StopJibri(ctx context.Context, requesterID, sessionID string) error {
	c.mu.Lock()
	requester, ok := c.participants[requesterID]
	c.mu.Unlock()
	if !ok {
		return focuserr.New(focuserr.ItemNotFound, "no such participant")
	}
	return c.jibriDisp.Stop(ctx, sessionID, requester.jibriRequesterOK())
}
