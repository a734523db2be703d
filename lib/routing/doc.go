// Package routing encodes node affinity into session ids.
//
// An external id has the form <realId>.<route>. The Codec adds and strips the route,
// an AffinityProvider decides which route a session should carry and the Reconciler
// corrects ids after a failover so that the load balancer sends the next request to
// the node that now owns the session.
package routing
