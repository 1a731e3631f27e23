package shared

import "context"

// SystemActorName is recorded when no actor identity accompanies a request.
const SystemActorName = "System"

// Actor is the opaque identity attached to ledger entries and audit logs.
// A zero ID with the system name is valid and means no authenticated caller.
type Actor struct {
	ID   int64
	Name string
}

// IsSystem reports whether the actor is the anonymous system identity.
func (a Actor) IsSystem() bool {
	return a.ID == 0
}

// DisplayName returns the actor name, falling back to the system name.
func (a Actor) DisplayName() string {
	if a.Name == "" {
		return SystemActorName
	}
	return a.Name
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, defaulting to System.
func ActorFromContext(ctx context.Context) Actor {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok {
		return Actor{Name: SystemActorName}
	}
	return actor
}
