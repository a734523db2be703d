package routing

import "github.com/lni/dragonboat/v4/logger"

var log = logger.GetLogger("routing")

// Routable is a session whose external id can be corrected.
type Routable interface {
	ID() string
	RealID() string
	ResetID(id string)
}

// Outcome is the result of Reconcile.
type Outcome struct {
	ID      string // id the response has to use
	Rewrite bool   // true if the client must be sent ID
}

// Reconciler makes sure the id sent to the client routes back to this node.
type Reconciler struct {
	codec *Codec
	route string
}

func NewReconciler(codec *Codec, route string) *Reconciler {
	return &Reconciler{codec: codec, route: route}
}

// Route returns the route of this node.
func (r *Reconciler) Route() string {
	return r.route
}

// Reconcile compares the id presented by the client and the id of the session with
// this node's route. If the session still carries the route of another node (failover)
// its id is reset, which marks the metadata dirty. If only the presented id is stale
// the client is sent the session's id. Calling Reconcile with the returned id again
// never requests another rewrite.
func (r *Reconciler) Reconcile(requestedID string, rec Routable) Outcome {
	current := rec.ID()
	if r.codec.Route(current) != r.route {
		id := r.codec.EncodeWithRoute(rec.RealID(), r.route)
		log.Debugf("session %s failed over from %q to %q", rec.RealID(), r.codec.Route(current), r.route)
		rec.ResetID(id)
		return Outcome{ID: id, Rewrite: true}
	}
	if r.codec.Route(requestedID) != r.route {
		return Outcome{ID: current, Rewrite: true}
	}
	return Outcome{ID: current}
}
